package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/stride/internal/domain/activity"
	"github.com/okian/stride/internal/domain/dedupe"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

// Strava defaults.
const (
	DefaultStravaBaseURL  = "https://www.strava.com/api/v3"
	DefaultStravaPerPage  = 200
	DefaultStravaMaxPages = 10
)

// stravaActivity is the subset of the activity summary that maps onto export
// columns.
type stravaActivity struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	SportType          string   `json:"sport_type"`
	StartDateLocal     string   `json:"start_date_local"`
	MovingTime         float64  `json:"moving_time"`
	Distance           float64  `json:"distance"`
	TotalElevationGain float64  `json:"total_elevation_gain"`
	AverageHeartrate   *float64 `json:"average_heartrate"`
	MaxSpeed           *float64 `json:"max_speed"`
	GearID             string   `json:"gear_id"`
}

var stravaColumns = []string{
	activity.ColID,
	activity.ColName,
	activity.ColDate,
	activity.ColType,
	activity.ColMovingTime,
	activity.ColDistance,
	activity.ColElevation,
	activity.ColAvgHeartRate,
	activity.ColMaxSpeed,
	activity.ColGear,
	activity.ColDistanceDup,
}

// StravaClient pages through the authenticated athlete's activities.
type StravaClient struct {
	baseURL  string
	token    string
	perPage  int
	maxPages int
	http     *http.Client
	deduper  dedupe.Deduper
	logger   logger.Logger
}

// StravaOption configures a StravaClient.
type StravaOption func(*StravaClient)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) StravaOption {
	return func(c *StravaClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithPaging sets the page size and the page limit.
func WithPaging(perPage, maxPages int) StravaOption {
	return func(c *StravaClient) {
		if perPage > 0 {
			c.perPage = perPage
		}
		if maxPages > 0 {
			c.maxPages = maxPages
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) StravaOption {
	return func(c *StravaClient) {
		if h != nil {
			c.http = h
		}
	}
}

// WithDeduper shares an activity ID deduper across fetches.
func WithDeduper(d dedupe.Deduper) StravaOption {
	return func(c *StravaClient) {
		if d != nil {
			c.deduper = d
		}
	}
}

// WithStravaLogger sets the client logger.
func WithStravaLogger(l logger.Logger) StravaOption {
	return func(c *StravaClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewStravaClient creates a client authenticating with a bearer token.
func NewStravaClient(token string, opts ...StravaOption) *StravaClient {
	c := &StravaClient{
		baseURL:  DefaultStravaBaseURL,
		token:    token,
		perPage:  DefaultStravaPerPage,
		maxPages: DefaultStravaMaxPages,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deduper == nil {
		c.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
	}
	return c
}

// Fetch requests pages until one comes back empty or the page limit is hit,
// and returns the activities as an export-shaped table. Activities already
// returned by an earlier page are skipped. A failed fetch forgets the IDs it
// recorded so a retry against a shared deduper sees them again.
func (c *StravaClient) Fetch(ctx context.Context) (activity.RawTable, error) {
	raw := activity.RawTable{Columns: append([]string(nil), stravaColumns...)}
	dupes := 0
	for page := 1; page <= c.maxPages; page++ {
		items, err := c.page(ctx, page)
		if err != nil {
			c.forget(ctx, raw)
			metrics.RecordSourceFetch("strava", "error")
			return activity.RawTable{}, err
		}
		if len(items) == 0 {
			break
		}
		pageRaw := activity.RawTable{Columns: raw.Columns}
		for _, a := range items {
			pageRaw.Rows = append(pageRaw.Rows, a.row())
		}
		fresh, n := dedupe.Rows(ctx, c.deduper, pageRaw)
		dupes += n
		raw.Rows = append(raw.Rows, fresh.Rows...)
		c.logger.Debug(ctx, "fetched strava page",
			logger.Int("page", page), logger.Int("activities", len(items)))
	}
	metrics.RecordSourceFetch("strava", "ok")
	c.logger.Info(ctx, "fetched strava activities",
		logger.Int("activities", len(raw.Rows)), logger.Int("duplicates", dupes))
	return raw, nil
}

func (c *StravaClient) forget(ctx context.Context, raw activity.RawTable) {
	idx := raw.Index()
	for _, row := range raw.Rows {
		if id := raw.Cell(row, idx, activity.ColID); id != "" {
			c.deduper.Unrecord(ctx, id)
		}
	}
	if len(raw.Rows) > 0 {
		c.logger.Debug(ctx, "forgot activities of failed fetch", logger.Int("activities", len(raw.Rows)))
	}
}

func (c *StravaClient) page(ctx context.Context, page int) ([]stravaActivity, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(page))
	endpoint := c.baseURL + "/athlete/activities?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d on page %d: %s", ErrStravaStatus, resp.StatusCode, page, body)
	}

	var items []stravaActivity
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("strava page %d: decode: %w", page, err)
	}
	return items, nil
}

func (a stravaActivity) row() []string {
	label := a.Type
	if label == "" {
		label = a.SportType
	}
	optional := func(p *float64) string {
		if p == nil {
			return ""
		}
		return formatFloat(*p)
	}
	distance := formatFloat(a.Distance)
	return []string{
		strconv.FormatInt(a.ID, 10),
		a.Name,
		a.StartDateLocal,
		label,
		formatFloat(a.MovingTime),
		distance,
		formatFloat(a.TotalElevationGain),
		optional(a.AverageHeartrate),
		optional(a.MaxSpeed),
		a.GearID,
		distance,
	}
}
