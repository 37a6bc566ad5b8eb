package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/okian/stride/internal/adapters/source"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/pkg/logger"
)

// Load defaults.
const (
	DefaultLoadRuns     = 20
	DefaultLoadWorkers  = 4
	DefaultLoadTimeout  = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultRunDeadline  = 2 * time.Minute
)

// LoadConfig configures a load test against a running service.
type LoadConfig struct {
	BaseURL      string        // Base URL of the service
	Runs         int           // Number of exports to submit
	Rows         int           // Rows per export
	Workers      int           // Concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between status polls
	RunDeadline  time.Duration // Longest wait for one run to finish

	// Progress, when set, is called once per export after its run settles.
	Progress func()
}

func (c LoadConfig) withDefaults() LoadConfig {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Runs <= 0 {
		c.Runs = DefaultLoadRuns
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	if c.Workers <= 0 {
		c.Workers = DefaultLoadWorkers
	}
	if c.Workers > c.Runs {
		c.Workers = c.Runs
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultLoadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RunDeadline <= 0 {
		c.RunDeadline = DefaultRunDeadline
	}
	return c
}

// LoadStats summarizes a load test.
type LoadStats struct {
	Submitted int           `json:"submitted"`
	Accepted  int           `json:"accepted"`
	Rejected  int           `json:"rejected"`
	Done      int           `json:"done"`
	Failed    int           `json:"failed"`
	Verified  int           `json:"verified"`
	Duration  time.Duration `json:"duration_ns"`
}

// RunsPerSecond is the submission throughput.
func (s LoadStats) RunsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Submitted) / s.Duration.Seconds()
}

// runStatus is the subset of GET /runs/{id} the load test reads.
type runStatus struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
	Error   string `json:"error"`
	Summary *struct {
		Diagnostics struct {
			Report struct {
				RawRows          int `json:"raw_rows"`
				DroppedCategory  int `json:"dropped_unrecognized_category"`
				DroppedTimestamp int `json:"dropped_bad_timestamp"`
			} `json:"report"`
		} `json:"diagnostics"`
	} `json:"summary"`
}

// RunLoad checks the service health, submits cfg.Runs generated exports to
// POST /runs from cfg.Workers goroutines, waits for each accepted run to
// finish and verifies the reported row counts against the generator
// manifest. Rejected submissions are counted, not retried.
func RunLoad(ctx context.Context, cfg LoadConfig, gen *Generator, log logger.Logger) (LoadStats, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	began := time.Now()

	if err := checkHealth(ctx, client, cfg.BaseURL); err != nil {
		return LoadStats{}, err
	}
	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("runs", cfg.Runs),
		logger.Int("rows", cfg.Rows),
		logger.Int("workers", cfg.Workers))

	var (
		c    counters
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	jobs := make(chan int, cfg.Workers*2)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				err := loadOne(ctx, client, cfg, gen, &c, log)
				if err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
				if cfg.Progress != nil {
					cfg.Progress()
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < cfg.Runs; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	stats := LoadStats{
		Submitted: int(c.submitted.Load()),
		Accepted:  int(c.accepted.Load()),
		Rejected:  int(c.rejected.Load()),
		Done:      int(c.done.Load()),
		Failed:    int(c.failed.Load()),
		Verified:  int(c.verified.Load()),
		Duration:  time.Since(began),
	}
	log.Info(ctx, "load test finished",
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("done", stats.Done),
		logger.Int("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("runsPerSecond", stats.RunsPerSecond()))

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, errs
}

type counters struct {
	submitted, accepted, rejected atomic.Int64
	done, failed, verified        atomic.Int64
}

// loadOne generates, submits, awaits and verifies one export.
func loadOne(ctx context.Context, client *http.Client, cfg LoadConfig, gen *Generator, c *counters, log logger.Logger) error {
	raw, m := gen.Table(ctx, cfg.Rows)
	c.submitted.Add(1)
	id, ok, err := submit(ctx, client, cfg.BaseURL, raw)
	if err != nil {
		return err
	}
	if !ok {
		c.rejected.Add(1)
		return nil
	}
	c.accepted.Add(1)

	st, err := waitRun(ctx, client, cfg, id)
	if err != nil {
		return err
	}
	if st.Status == "failed" {
		c.failed.Add(1)
		log.Warn(ctx, "run failed", logger.String("run", id), logger.String("error", st.Error))
		return nil
	}
	c.done.Add(1)
	if err := verify(st, m); err != nil {
		return err
	}
	c.verified.Add(1)
	return nil
}

func checkHealth(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// submit posts one export. ok is false when the service applied backpressure.
func submit(ctx context.Context, client *http.Client, base string, raw activity.RawTable) (id string, ok bool, err error) {
	var body bytes.Buffer
	if err := source.WriteCSV(&body, raw); err != nil {
		return "", false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/runs?format=csv", &body)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "text/csv")
	resp, err := client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		var ack struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return "", false, fmt.Errorf("submit: decode ack: %w", err)
		}
		return ack.ID, true, nil
	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", false, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("submit: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

func waitRun(ctx context.Context, client *http.Client, cfg LoadConfig, id string) (runStatus, error) {
	deadline := time.Now().Add(cfg.RunDeadline)
	for {
		st, err := getRun(ctx, client, cfg.BaseURL, id)
		if err != nil {
			return runStatus{}, err
		}
		if st.Status == "done" || st.Status == "failed" {
			return st, nil
		}
		if time.Now().After(deadline) {
			return runStatus{}, fmt.Errorf("run %s still %s after %s", id, st.Status, cfg.RunDeadline)
		}
		select {
		case <-ctx.Done():
			return runStatus{}, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}

func getRun(ctx context.Context, client *http.Client, base, id string) (runStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/runs/"+id, nil)
	if err != nil {
		return runStatus{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return runStatus{}, fmt.Errorf("get run %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return runStatus{}, fmt.Errorf("get run %s: status %d", id, resp.StatusCode)
	}
	var st runStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return runStatus{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return st, nil
}

// verify compares the reported drop counts with the manifest.
func verify(st runStatus, m Manifest) error {
	if st.Summary == nil {
		return fmt.Errorf("%w: run %s has no summary", ErrVerification, st.ID)
	}
	r := st.Summary.Diagnostics.Report
	if r.RawRows != m.Rows || r.DroppedCategory != m.Unrecognized || r.DroppedTimestamp != m.BadDates {
		return fmt.Errorf("%w: run %s reported raw=%d category=%d timestamp=%d, generated raw=%d category=%d timestamp=%d",
			ErrVerification, st.ID, r.RawRows, r.DroppedCategory, r.DroppedTimestamp, m.Rows, m.Unrecognized, m.BadDates)
	}
	return nil
}
