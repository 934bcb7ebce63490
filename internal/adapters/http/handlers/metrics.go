package handlers

import (
	"net/http"

	"github.com/clara-assistant/clara/internal/adapters/metrics"
)

// MetricsHandler serves the JSON counters snapshot. The Prometheus
// exposition endpoint is mounted separately via promhttp.
type MetricsHandler struct {
	recorder *metrics.Recorder
}

func NewMetricsHandler(recorder *metrics.Recorder) *MetricsHandler {
	return &MetricsHandler{recorder: recorder}
}

func (h *MetricsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.recorder.Snapshot(), http.StatusOK)
}
