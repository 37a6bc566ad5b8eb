package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// MemoryStore keeps runs in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	closed bool
	cfg    settings
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]Run),
		cfg:  newSettings(opts),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, run Run) error {
	defer observe("save", time.Now())
	if err := validate(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if prev, ok := s.runs[run.ID]; ok && !prev.CreatedAt.IsZero() {
		run.CreatedAt = prev.CreatedAt
	}
	s.runs[run.ID] = run
	s.evictLocked(ctx)
	metrics.UpdateStoredRuns(len(s.runs))
	return nil
}

// evictLocked drops the oldest finished runs beyond maxRuns. Runs still
// queued or running are never evicted.
func (s *MemoryStore) evictLocked(ctx context.Context) {
	over := len(s.runs) - s.cfg.maxRuns
	if s.cfg.maxRuns == 0 || over <= 0 {
		return
	}
	finished := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		if r.Status.Finished() {
			finished = append(finished, r)
		}
	}
	sortNewestFirst(finished)
	for i := len(finished) - 1; i >= 0 && over > 0; i-- {
		delete(s.runs, finished[i].ID)
		over--
	}
	s.cfg.log.Debug(ctx, "evicted runs", logger.Int("stored", len(s.runs)))
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Run, error) {
	defer observe("get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, n int) ([]Run, error) {
	defer observe("list", time.Now())
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		r.Result = nil
		out = append(out, r)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// sortNewestFirst orders runs by creation time descending, then by ID.
func sortNewestFirst(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
