package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/stride/internal/adapters/mq/queue"
	"github.com/okian/stride/internal/adapters/repository"
	"github.com/okian/stride/internal/adapters/source"
	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/aggregate"
	"github.com/okian/stride/internal/domain/calendar"
	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/logger"
)

// Upload formats accepted by POST /analyze and POST /runs.
const (
	formatCSV = "csv"
	formatFIT = "fit"
)

// RunsHandler handles analysis submissions and run lookups.
type RunsHandler struct {
	deps      Dependencies
	maxUpload int64
	log       logger.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies, opts ...Option) *RunsHandler {
	h := &RunsHandler{deps: deps, maxUpload: DefaultMaxUploadBytes, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// upload is a parsed request body plus its range parameters.
type upload struct {
	source string
	raw    activity.RawTable
	rng    activity.DateRange
}

// readUpload parses the export in the body. The format comes from the
// format query parameter, defaulting to CSV.
func (h *RunsHandler) readUpload(w http.ResponseWriter, r *http.Request, op string) (upload, error) {
	q := r.URL.Query()
	rng, err := activity.ParseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return upload{}, WrapKind(op, ErrBadRequest, fmt.Errorf("dates must be YYYY-MM-DD: %w", err))
	}
	if err := rng.Validate(); err != nil {
		return upload{}, Wrap(op, err)
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUpload)
	defer body.Close()

	format := strings.ToLower(q.Get("format"))
	var raw activity.RawTable
	switch format {
	case "", formatCSV:
		format = formatCSV
		raw, err = source.ReadCSV(r.Context(), body, source.WithLogger(h.log))
	case formatFIT:
		raw, err = source.ReadFIT(r.Context(), body, source.WithLogger(h.log))
	default:
		return upload{}, NewKind(op, fmt.Errorf("%w: unknown format %q", ErrBadRequest, format))
	}
	if err != nil {
		return upload{}, WrapKind(op, ErrBadRequest, err)
	}
	return upload{source: format, raw: raw, rng: rng}, nil
}

// HandleAnalyze handles POST /analyze requests.
func (h *RunsHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	up, err := h.readUpload(w, r, op)
	if err != nil {
		fail(w, err)
		return
	}
	run, err := h.deps.Analyze(r.Context(), up.source, up.raw, up.rng)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// HandleSubmit handles POST /runs requests.
func (h *RunsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	up, err := h.readUpload(w, r, op)
	if err != nil {
		fail(w, err)
		return
	}
	run, err := h.deps.Submit(r.Context(), up.source, up.raw, up.rng)
	switch {
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		fail(w, WrapKind(op, ErrBackpressure, err))
		return
	case err != nil:
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": run.ID, "status": string(run.Status)})
}

// HandleList handles GET /runs requests.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_runs"
	n, err := intParam(r, "limit", DefaultListLimit)
	if err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	runs, err := h.deps.ListRuns(r.Context(), n)
	if errors.Is(err, repository.ErrInvalidLimit) {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = newRunResponse(run)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetRun handles GET /runs/{id} requests.
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_run"
	run, err := h.deps.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

// result loads a finished run's result.
func (h *RunsHandler) result(ctx context.Context, r *http.Request, op string) (pipeline.Result, error) {
	id := r.PathValue("id")
	run, err := h.deps.GetRun(ctx, id)
	if err != nil {
		return pipeline.Result{}, Wrap(op, err)
	}
	if run.Status == repository.StatusFailed {
		return pipeline.Result{}, WrapKind(op, ErrNotReady, fmt.Errorf("run %s failed: %s", id, run.Error))
	}
	if run.Result == nil {
		return pipeline.Result{}, WrapKind(op, ErrNotReady, fmt.Errorf("run %s is %s", id, run.Status))
	}
	return *run.Result, nil
}

// HandleView handles GET /runs/{id}/views/{sport} requests.
func (h *RunsHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	const op = "api.view"
	res, err := h.result(r.Context(), r, op)
	if err != nil {
		fail(w, err)
		return
	}
	c, err := sportParam(r.PathValue("sport"))
	if err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	v, ok := res.Views[c]
	if !ok {
		fail(w, WrapKind(op, repository.ErrNotFound, fmt.Errorf("no %s view", c)))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleSeries handles GET /runs/{id}/series?sport=&period= requests.
func (h *RunsHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	const op = "api.series"
	res, err := h.result(r.Context(), r, op)
	if err != nil {
		fail(w, err)
		return
	}
	c, err := sportParam(r.URL.Query().Get("sport"))
	if err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := calendar.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sport":  c,
		"period": p.String(),
		"points": res.SeriesFor(c, p),
	})
}

// HandleRankings handles GET /runs/{id}/rankings?sport=&by=&n= requests.
func (h *RunsHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.rankings"
	res, err := h.result(r.Context(), r, op)
	if err != nil {
		fail(w, err)
		return
	}
	q := r.URL.Query()
	c, err := sportParam(q.Get("sport"))
	if err != nil {
		fail(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	by := q.Get("by")
	if by == "" {
		by = string(aggregate.Longest)
	}
	key, err := aggregate.ParseRankKey(by)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	n, err := intParam(r, "n", pipeline.DefaultTopN)
	if err != nil || n <= 0 {
		fail(w, NewKind(op, fmt.Errorf("%w: n must be a positive integer", ErrBadRequest)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sport": c,
		"by":    key,
		"rows":  aggregate.TopN(res.Views[c].Rows, key, n),
	})
}

// HandleLoad handles GET /runs/{id}/load requests.
func (h *RunsHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r.Context(), r, "api.load")
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Load)
}

// HandlePredictions handles GET /runs/{id}/predictions requests.
func (h *RunsHandler) HandlePredictions(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r.Context(), r, "api.predictions")
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Predictions)
}

// sportParam resolves a category name case-insensitively.
func sportParam(s string) (activity.Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range activity.Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown sport %q", s)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}
