// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/okian/stride/internal/adapters/cache"
	"github.com/okian/stride/internal/adapters/mq/queue"
	"github.com/okian/stride/internal/adapters/mq/worker"
	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Service runs exports through the pipeline, either inline or through the
// job queue, and keeps every run in the run store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store repository.Store
	cache *cache.Cache
	queue queue.Queue
	pool  *worker.Pool

	// Configuration
	workerCount int
	queueSize   int
	cacheSize   int
	cacheTTL    time.Duration
	storeDriver string
	sqlitePath  string
	pipeline    pipeline.Options

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
		cacheSize:   32 << 20,
		cacheTTL:    time.Hour,
		storeDriver: DriverMemory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and cache and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting analysis service...")

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		s.store = store
	}
	if s.cacheSize > 0 {
		s.cache = cache.New(s.cacheSize, cache.WithTTL(s.cacheTTL), cache.WithLogger(s.logger.Named("cache")))
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize), queue.WithLogger(s.logger.Named("queue")))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.AnalyzerFunc(s.runPipeline), s.store,
		worker.WithLogger(s.logger.Named("worker")))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("cacheBytes", s.cacheSize),
		logger.String("store", s.storeDriver),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	if s.storeDriver == DriverSQLite {
		return repository.OpenSQLite(ctx, s.sqlitePath, repository.WithLogger(s.logger.Named("store")))
	}
	return repository.NewMemoryStore(repository.WithLogger(s.logger.Named("store"))), nil
}

// Stop drains the queue, then closes the store and the cache.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping analysis service...")

	var err error
	if s.pool != nil {
		err = multierr.Append(err, s.pool.Shutdown(ctx))
	}
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	if s.cache != nil {
		err = multierr.Append(err, s.cache.Close())
	}

	s.started = false
	s.logger.Info(ctx, "analysis service stopped")
	return err
}

// runPipeline serves a cached result when the same export was analyzed with
// the same options, and runs the pipeline otherwise.
func (s *Service) runPipeline(ctx context.Context, raw activity.RawTable, opts pipeline.Options) (pipeline.Result, error) {
	var key string
	if s.cache != nil {
		key = cache.Key(raw, opts)
		if res, ok := s.cache.Get(ctx, key); ok {
			s.logger.Debug(ctx, "serving cached result", logger.String("key", key))
			return res, nil
		}
	}

	res, err := pipeline.Run(ctx, raw, opts)
	if err != nil {
		return pipeline.Result{}, err
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, key, res); err != nil {
			s.logger.Warn(ctx, "caching result failed", logger.Error(err))
		}
	}
	return res, nil
}

func (s *Service) optionsFor(rng activity.DateRange) pipeline.Options {
	opts := s.pipeline
	opts.Range = rng
	opts.Logger = s.logger.Named("pipeline")
	return opts
}

func (s *Service) newRun(src string, raw activity.RawTable, status repository.Status) repository.Run {
	now := time.Now().UTC()
	return repository.Run{
		ID:        uuid.NewString(),
		Status:    status,
		Source:    src,
		Digest:    cache.Digest(raw),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) ready() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// Analyze runs the pipeline inline. Failed runs are stored too; their
// pipeline error is returned.
func (s *Service) Analyze(ctx context.Context, src string, raw activity.RawTable, rng activity.DateRange) (repository.Run, error) {
	store, err := s.ready()
	if err != nil {
		return repository.Run{}, err
	}
	run := s.newRun(src, raw, repository.StatusRunning)

	res, runErr := s.runPipeline(ctx, raw, s.optionsFor(rng))
	run.UpdatedAt = time.Now().UTC()
	run.Outcome = pipeline.Outcome(runErr)
	if runErr != nil {
		run.Status = repository.StatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = repository.StatusDone
		run.Result = &res
	}

	if err := store.Save(ctx, run); err != nil {
		return repository.Run{}, multierr.Append(runErr, fmt.Errorf("save run: %w", err))
	}
	return run, runErr
}

// Submit stores a queued run and hands the export to the worker pool.
// A rejected job leaves a failed run behind and returns the queue error.
func (s *Service) Submit(ctx context.Context, src string, raw activity.RawTable, rng activity.DateRange) (repository.Run, error) {
	store, err := s.ready()
	if err != nil {
		return repository.Run{}, err
	}
	if err := rng.Validate(); err != nil {
		return repository.Run{}, err
	}

	run := s.newRun(src, raw, repository.StatusQueued)
	if err := store.Save(ctx, run); err != nil {
		return repository.Run{}, fmt.Errorf("save run: %w", err)
	}

	job := queue.Job{RunID: run.ID, Source: src, Raw: raw, Options: s.optionsFor(rng), EnqueuedAt: run.CreatedAt}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		run.Status = repository.StatusFailed
		run.Outcome = "rejected"
		run.Error = err.Error()
		run.UpdatedAt = time.Now().UTC()
		if saveErr := store.Save(ctx, run); saveErr != nil {
			s.logger.Warn(ctx, "recording rejected run failed", logger.Error(saveErr))
		}
		return repository.Run{}, err
	}

	s.logger.Debug(ctx, "run queued", logger.String("run", run.ID), logger.Int("rows", len(raw.Rows)))
	return run, nil
}

// GetRun returns a stored run.
func (s *Service) GetRun(ctx context.Context, id string) (repository.Run, error) {
	store, err := s.ready()
	if err != nil {
		return repository.Run{}, err
	}
	return store.Get(ctx, id)
}

// ListRuns returns the newest runs.
func (s *Service) ListRuns(ctx context.Context, n int) ([]repository.Run, error) {
	store, err := s.ready()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, n)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"store":       s.storeDriver,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stored := s.store.Count(ctx)
		pool := s.pool.Stats()

		stats["queueLength"] = queueLen
		stats["storedRuns"] = stored
		stats["processed"] = pool.Processed
		stats["failed"] = pool.Failed
		if s.cache != nil {
			stats["cache"] = s.cache.Stats()
		}

		metrics.UpdateStoredRuns(stored)
	}
	return stats
}
