// Package worker drains the job queue and runs the pipeline for each job,
// recording run status as it goes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/stride/internal/adapters/mq/queue"
	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Analyzer runs the pipeline over one export.
type Analyzer interface {
	Analyze(ctx context.Context, raw activity.RawTable, opts pipeline.Options) (pipeline.Result, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, raw activity.RawTable, opts pipeline.Options) (pipeline.Result, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, raw activity.RawTable, opts pipeline.Options) (pipeline.Result, error) {
	return f(ctx, raw, opts)
}

// Recorder persists run state.
type Recorder interface {
	Get(ctx context.Context, id string) (repository.Run, error)
	Save(ctx context.Context, run repository.Run) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
	Len(ctx context.Context) int
}

// Worker processes jobs until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in progress.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	analyzer Analyzer
	recorder Recorder
	name     string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, analyzer Analyzer, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		analyzer: analyzer,
		recorder: recorder,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.queue.Len(ctx)
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("run", j.RunID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after the job in progress.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job. Pipeline failures are recorded on the run and are
// not returned; only store failures are.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()

	run, err := w.recorder.Get(ctx, j.RunID)
	if errors.Is(err, repository.ErrNotFound) {
		run = repository.Run{ID: j.RunID, Source: j.Source, CreatedAt: j.EnqueuedAt}
	} else if err != nil {
		return fmt.Errorf("load run %s: %w", j.RunID, err)
	}

	run.Status = repository.StatusRunning
	run.UpdatedAt = time.Now().UTC()
	if err := w.recorder.Save(ctx, run); err != nil {
		return fmt.Errorf("mark run %s running: %w", j.RunID, err)
	}

	res, err := w.analyzer.Analyze(ctx, j.Raw, j.Options)
	run.UpdatedAt = time.Now().UTC()
	run.Outcome = pipeline.Outcome(err)
	if err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerFailure()
		run.Status = repository.StatusFailed
		run.Error = err.Error()
		w.logger.Warn(ctx, "run failed",
			logger.String("run", j.RunID),
			logger.String("outcome", run.Outcome),
			logger.Error(err))
	} else {
		run.Status = repository.StatusDone
		run.Result = &res
	}
	w.processed.Add(1)

	if err := w.recorder.Save(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", j.RunID, err)
	}
	w.logger.Debug(ctx, "run finished",
		logger.String("run", j.RunID),
		logger.String("status", string(run.Status)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Stats counts the jobs handled by a worker or pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one means
// one worker per CPU.
func NewPool(workerCount int, q Queue, analyzer Analyzer, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	// Options are applied to a throwaway worker to pick up the logger.
	probe := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(probe)
	}
	pool.logger = probe.logger.Named("worker-pool")

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, analyzer, recorder,
			append(opts, WithName("worker-"+strconv.Itoa(i)))...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Stats sums the counters of every worker.
func (p *Pool) Stats() Stats {
	s := Stats{Workers: len(p.workers)}
	for _, w := range p.workers {
		s.Processed += w.processed.Load()
		s.Failed += w.failed.Load()
	}
	return s
}

// Shutdown closes the queue and lets the workers drain it. Workers still
// busy when ctx (or the pool timeout) expires are stopped after their
// current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut = true
			w.stopOnce.Do(func() { close(w.shutdown) })
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", drainCtx.Err())
	}
	return nil
}
