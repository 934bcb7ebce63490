package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clara-assistant/clara/internal/adapters/metrics"
)

func TestMetricsHandler_Summary(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.RecordRequest(120, true)
	recorder.RecordRequest(80, false)
	recorder.RecordCache(true)

	h := NewMetricsHandler(recorder)
	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if snap.Requests.Total != 2 || snap.Requests.OK != 1 || snap.Requests.Failed != 1 {
		t.Errorf("unexpected request counters: %+v", snap.Requests)
	}
}
