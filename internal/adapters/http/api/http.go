// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/aggregate"
	"github.com/okian/stride/internal/domain/calendar"
	"github.com/okian/stride/internal/domain/load"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/internal/domain/sport"
	"github.com/okian/stride/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Analyze runs the pipeline synchronously and returns the finished run.
	Analyze(ctx context.Context, source string, raw activity.RawTable, rng activity.DateRange) (repository.Run, error)

	// Submit queues the export and returns the queued run. A full or closed
	// queue is reported as queue.ErrFull or queue.ErrClosed.
	Submit(ctx context.Context, source string, raw activity.RawTable, rng activity.DateRange) (repository.Run, error)

	// Read operations expose stored runs.
	GetRun(ctx context.Context, id string) (repository.Run, error)
	ListRuns(ctx context.Context, n int) ([]repository.Run, error)
}

// Defaults for request handling.
const (
	DefaultMaxUploadBytes = 32 << 20
	DefaultListLimit      = 50
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	runsHandler   *RunsHandler
}

// Option applies a configuration option to the Server.
type Option func(*RunsHandler)

// WithMaxUploadBytes caps request bodies carrying exports.
func WithMaxUploadBytes(n int64) Option {
	return func(h *RunsHandler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *RunsHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		runsHandler:   NewRunsHandler(deps, opts...),
	}
}

type route struct {
	pattern string
	name    string
	handler func(*Server) http.HandlerFunc
}

var routes = []route{
	{"GET /healthz", "healthz", func(s *Server) http.HandlerFunc { return s.healthHandler.HandleHealth }},
	{"GET /stats", "stats", func(s *Server) http.HandlerFunc { return s.statsHandler.HandleStats }},
	{"POST /analyze", "analyze", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleAnalyze }},
	{"POST /runs", "runs_submit", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleSubmit }},
	{"GET /runs", "runs_list", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleList }},
	{"GET /runs/{id}", "run", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleGetRun }},
	{"GET /runs/{id}/views/{sport}", "run_view", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleView }},
	{"GET /runs/{id}/series", "run_series", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleSeries }},
	{"GET /runs/{id}/rankings", "run_rankings", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleRankings }},
	{"GET /runs/{id}/load", "run_load", func(s *Server) http.HandlerFunc { return s.runsHandler.HandleLoad }},
	{"GET /runs/{id}/predictions", "run_predictions", func(s *Server) http.HandlerFunc { return s.runsHandler.HandlePredictions }},
}

// Routes returns the patterns Register installs.
func Routes() []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.pattern
	}
	return out
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	for _, r := range routes {
		mux.HandleFunc(r.pattern, MetricsMiddleware(r.handler(s), r.name))
	}
}

// runResponse is the JSON shape of a run.
type runResponse struct {
	ID        string            `json:"id"`
	Status    repository.Status `json:"status"`
	Source    string            `json:"source,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Summary   *summary          `json:"summary,omitempty"`
}

type sportSummary struct {
	Category  activity.Category `json:"category"`
	Metric    string            `json:"metric"`
	Unit      string            `json:"unit"`
	Rows      int               `json:"rows"`
	RowErrors int               `json:"row_errors"`
}

type summary struct {
	Range       activity.DateRange        `json:"range"`
	Sports      []sportSummary            `json:"sports"`
	Totals      []aggregate.SportTotal    `json:"totals"`
	ByCategory  []aggregate.CategoryTotal `json:"by_category"`
	Load        *load.Point               `json:"load,omitempty"`
	Diagnostics pipeline.Diagnostics      `json:"diagnostics"`
}

func newRunResponse(run repository.Run) runResponse {
	out := runResponse{
		ID:        run.ID,
		Status:    run.Status,
		Source:    run.Source,
		Outcome:   run.Outcome,
		Error:     run.Error,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	if run.Result != nil {
		out.Summary = summarize(*run.Result)
	}
	return out
}

func summarize(res pipeline.Result) *summary {
	s := &summary{
		Range:       res.Range,
		Totals:      res.Totals,
		ByCategory:  res.ByCategory,
		Diagnostics: res.Diagnostics,
	}
	for _, v := range res.Views.Ordered() {
		ss := sportSummary{Category: v.Category, Rows: len(v.Rows), RowErrors: res.Diagnostics.ViewErrors[v.Category]}
		if f, ok := sport.Lookup(v.Category); ok {
			ss.Metric, ss.Unit = f.Metric, f.Unit
		}
		s.Sports = append(s.Sports, ss)
	}
	if p, ok := res.Load.Last(); ok {
		s.Load = &p
	}
	return s
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, activity.ErrSchema):
		return http.StatusUnprocessableEntity, "schema_error"
	case errors.Is(err, activity.ErrEmptyResult):
		return http.StatusUnprocessableEntity, "empty_result"
	case errors.Is(err, activity.ErrDateRange):
		return http.StatusUnprocessableEntity, "date_range_error"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, calendar.ErrUnknownPeriod),
		errors.Is(err, aggregate.ErrUnknownRankKey):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal_error"
}

func fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
