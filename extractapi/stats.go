package extractapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hazyhaar/doctext/observability"
)

const (
	defaultStatsLimit = 50
	maxStatsLimit     = 500
	defaultStatsSince = 24 * time.Hour

	msgStatsDisabled = "Observability is disabled"
)

type statsResponse struct {
	Metric  string                          `json:"metric"`
	Since   time.Time                       `json:"since"`
	Events  []observability.ExtractionEvent `json:"events"`
	Metrics []*observability.Metric         `json:"metrics"`
}

// Stats serves GET /stats: the latest extraction events and the points of
// one metric series. Query parameters are limit (default 50, max 500),
// metric (default extraction_duration_ms) and since (a duration, default
// 24h). Metrics still buffered in memory are not visible yet.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.events == nil || h.metrics == nil {
		writeFailure(w, http.StatusNotFound, msgStatsDisabled)
		return
	}

	q := r.URL.Query()
	limit := defaultStatsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeFailure(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxStatsLimit)
	}
	since := defaultStatsSince
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeFailure(w, http.StatusBadRequest, "since must be a positive duration such as 1h")
			return
		}
		since = d
	}
	metric := q.Get("metric")
	if metric == "" {
		metric = observability.MetricExtractionDurationMs
	}

	ctx := r.Context()
	logger := h.requestLogger(ctx)
	events, err := h.events.Recent(ctx, limit)
	if err != nil {
		logger.Error("stats: recent events", "error", err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	start := time.Now().Add(-since)
	points, err := h.metrics.Query(ctx, metric, &start, nil, limit)
	if err != nil {
		logger.Error("stats: query metrics", "error", err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := statsResponse{
		Metric:  metric,
		Since:   start.UTC().Truncate(time.Second),
		Events:  events,
		Metrics: points,
	}
	if resp.Events == nil {
		resp.Events = []observability.ExtractionEvent{}
	}
	if resp.Metrics == nil {
		resp.Metrics = []*observability.Metric{}
	}
	writeJSON(w, http.StatusOK, resp)
}
