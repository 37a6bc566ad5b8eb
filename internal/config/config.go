// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and STRIDE_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// DateLayout is the layout of date-only settings such as DefaultStart.
const DateLayout = "2006-01-02"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, tees logs into a rotating file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// JobQueueSize bounds the in-memory pipeline job queue.
	JobQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// CacheSizeBytes sizes the result cache; 0 disables it.
	CacheSizeBytes int `koanf:"cache_size_bytes"`

	// CacheTTLSeconds expires cached results; 0 keeps them until evicted.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// StoreDriver selects the run store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// MaxUploadBytes caps request bodies carrying exports.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// DefaultStart is the earliest date of the default range (YYYY-MM-DD).
	DefaultStart string `koanf:"default_start"`

	// HRFillWindow is the trailing window used to fill missing heart rate.
	HRFillWindow int `koanf:"hr_fill_window"`

	// RollingWindow is the rolling-mean window over gap-filled series.
	RollingWindow int `koanf:"rolling_window"`

	// CTLSpan and ATLSpan are the EWMA spans of the load model.
	CTLSpan int `koanf:"ctl_span"`
	ATLSpan int `koanf:"atl_span"`

	// NeutralIntensity is imputed for activities without an intensity factor.
	NeutralIntensity float64 `koanf:"neutral_intensity"`

	// TopN is the default ranking size.
	TopN int `koanf:"top_n"`

	// MetricsRefreshSeconds is how often periodic gauges are refreshed.
	MetricsRefreshSeconds int `koanf:"metrics_refresh_seconds"`
	// MetricsInstance, when set, is attached to every metric as the instance label.
	MetricsInstance string `koanf:"metrics_instance"`

	// Strava API client settings.
	StravaBaseURL  string `koanf:"strava_base_url"`
	StravaPerPage  int    `koanf:"strava_per_page"`
	StravaMaxPages int    `koanf:"strava_max_pages"`
	StravaToken    string `koanf:"strava_token"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		JobQueueSize:          1_024,
		WorkerCount:           runtime.NumCPU(),
		CacheSizeBytes:        32 << 20,
		CacheTTLSeconds:       3_600,
		StoreDriver:           "memory",
		SQLitePath:            "data/stride.db",
		MaxUploadBytes:        32 << 20,
		DefaultStart:          "2020-01-01",
		HRFillWindow:          5,
		RollingWindow:         3,
		CTLSpan:               42,
		ATLSpan:               7,
		NeutralIntensity:      1.0,
		TopN:                  5,
		MetricsRefreshSeconds: 10,
		StravaBaseURL:         "https://www.strava.com/api/v3",
		StravaPerPage:         200,
		StravaMaxPages:        10,
	}
}

// DefaultStartDate parses DefaultStart.
func (c *Config) DefaultStartDate() (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(c.DefaultStart))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: default_start: %v", ErrInvalidConfig, err)
	}
	return t, nil
}

// CacheTTL returns the cache expiry as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// MetricsRefresh returns the gauge refresh interval as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshSeconds) * time.Second
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != "memory" && c.StoreDriver != "sqlite":
		return fmt.Errorf("%w: store_driver must be memory or sqlite, got %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == "sqlite" && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path is required for the sqlite driver", ErrInvalidConfig)
	case c.HRFillWindow < 1 || c.RollingWindow < 1:
		return fmt.Errorf("%w: windows must be positive", ErrInvalidConfig)
	case c.CTLSpan < 1 || c.ATLSpan < 1:
		return fmt.Errorf("%w: load spans must be positive", ErrInvalidConfig)
	case c.NeutralIntensity <= 0:
		return fmt.Errorf("%w: neutral_intensity must be positive", ErrInvalidConfig)
	case c.MetricsRefreshSeconds < 1:
		return fmt.Errorf("%w: metrics_refresh_seconds must be positive", ErrInvalidConfig)
	case c.CacheSizeBytes < 0 || c.CacheTTLSeconds < 0:
		return fmt.Errorf("%w: cache settings must not be negative", ErrInvalidConfig)
	}
	if _, err := c.DefaultStartDate(); err != nil {
		return err
	}
	return nil
}
