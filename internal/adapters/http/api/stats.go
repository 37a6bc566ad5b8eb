package api

import (
	"net/http"
	"time"
)

// StatsProvider reports runtime counters of the service.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
	now      func() time.Time
}

// NewStatsHandler creates a stats handler backed by provider.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider, now: time.Now}
}

// HandleStats writes the provider's counters stamped with the server time.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]interface{}{}
	if h.provider != nil {
		for k, v := range h.provider.GetStats() {
			stats[k] = v
		}
	}
	stats["time"] = h.now().UTC().Format(time.RFC3339)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stats)
}
