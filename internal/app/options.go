package service

import (
	"fmt"
	"time"

	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/config"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/logger"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCache sizes the result cache; a zero size disables it.
func WithCache(sizeBytes int, ttl time.Duration) Option {
	return func(s *Service) {
		if sizeBytes >= 0 {
			s.cacheSize = sizeBytes
		}
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithSQLite stores runs in the SQLite database at path.
func WithSQLite(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.storeDriver = DriverSQLite
			s.sqlitePath = path
		}
	}
}

// WithStore uses store instead of opening one on Start. The service closes
// it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithPipelineOptions sets the defaults applied to every run. The range is
// taken from each request.
func WithPipelineOptions(opts pipeline.Options) Option {
	return func(s *Service) {
		s.pipeline = opts
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// PipelineOptions maps the analysis settings of cfg onto pipeline options.
func PipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	start, err := cfg.DefaultStartDate()
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("default start: %w", err)
	}
	return pipeline.Options{
		DefaultStart:     start,
		HRFillWindow:     cfg.HRFillWindow,
		RollingWindow:    cfg.RollingWindow,
		TopN:             cfg.TopN,
		CTLSpan:          cfg.CTLSpan,
		ATLSpan:          cfg.ATLSpan,
		NeutralIntensity: cfg.NeutralIntensity,
	}, nil
}

// OptionsFromConfig maps process configuration onto service options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	po, err := PipelineOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.JobQueueSize),
		WithCache(cfg.CacheSizeBytes, cfg.CacheTTL()),
		WithPipelineOptions(po),
	}
	if cfg.StoreDriver == DriverSQLite {
		opts = append(opts, WithSQLite(cfg.SQLitePath))
	}
	return opts, nil
}
