// Package repository stores pipeline runs: their status while queued or
// running, and the full result once they finish.
package repository

import (
	"context"
	"time"

	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/metrics"
)

// Status is the lifecycle state of a run.
type Status string

// Run states.
const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Finished reports whether the run reached a terminal state.
func (s Status) Finished() bool { return s == StatusDone || s == StatusFailed }

// Run is one pipeline execution.
type Run struct {
	ID        string           `json:"id"`
	Status    Status           `json:"status"`
	Source    string           `json:"source,omitempty"`
	Digest    string           `json:"digest,omitempty"`
	Outcome   string           `json:"outcome,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Result    *pipeline.Result `json:"result,omitempty"`
}

// Store provides read/write access to runs.
type Store interface {
	// Save inserts run or replaces the stored run with the same ID.
	// CreatedAt of an existing run is preserved.
	Save(ctx context.Context, run Run) error

	// Get returns the run with id.
	// Returns ErrNotFound if the run is unknown.
	Get(ctx context.Context, id string) (Run, error)

	// List returns up to n runs, newest first, without their results.
	List(ctx context.Context, n int) ([]Run, error)

	// Count returns the number of stored runs.
	Count(ctx context.Context) int

	Close() error
}

func validate(run Run) error {
	if run.ID == "" {
		return ErrInvalidRun
	}
	switch run.Status {
	case StatusQueued, StatusRunning, StatusDone, StatusFailed:
		return nil
	}
	return ErrInvalidRun
}

func observe(op string, began time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(began).Microseconds())/1000)
}
