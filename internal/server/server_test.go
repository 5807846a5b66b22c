package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kgelab/kge-rank/internal/bus"
	"github.com/kgelab/kge-rank/internal/config"
	"github.com/kgelab/kge-rank/internal/evaluation"
	"github.com/kgelab/kge-rank/internal/pkg/logger"
	"github.com/kgelab/kge-rank/internal/ranking"
	"github.com/kgelab/kge-rank/internal/report"
)

func testConfig() *config.Config {
	return &config.Config{
		Host: "localhost",
		Port: 8080,
		Bus:  config.BusConfig{Type: "memory"},
		Observability: config.ObservabilityConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(DefaultConfig(), testConfig(), logger.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func storedReport(t *testing.T, s *Server, runID string) {
	t.Helper()
	result := evaluation.ResultFromRows([]evaluation.Row{
		{Side: ranking.SideBoth, RankType: ranking.RankRealistic, Metric: "arithmetic_mean_rank", Value: 2.0},
		{Side: ranking.SideBoth, RankType: ranking.RankRealistic, Metric: "inverse_harmonic_mean_rank", Value: 0.75},
	})
	err := s.Store().Save(context.Background(), &report.RunReport{
		RunID:      runID,
		CreatedAt:  time.Now(),
		NumTriples: 10,
		Filtered:   true,
		BatchSize:  32,
		Result:     result,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/version", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"version":"dev"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetReport(t *testing.T) {
	s := testServer(t)
	storedReport(t, s, "run-1")
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/run-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// /v1 responses are wrapped with data/meta.
	var wrapped WrappedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &wrapped); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if wrapped.Meta.RequestID == "" {
		t.Error("expected request ID in meta")
	}

	data, ok := wrapped.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %T", wrapped.Data)
	}
	if data["run_id"] != "run-1" {
		t.Errorf("expected run-1, got %v", data["run_id"])
	}
}

func TestGetReportNotFound(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/no-such-run", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListReports(t *testing.T) {
	s := testServer(t)
	storedReport(t, s, "run-1")
	storedReport(t, s, "run-2")
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "run-1") || !strings.Contains(body, "run-2") {
		t.Errorf("expected both runs listed: %s", body)
	}
}

func TestListReportsInvalidLimit(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports?limit=abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteReport(t *testing.T) {
	s := testServer(t)
	storedReport(t, s, "run-1")
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/reports/run-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/run-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestReportMetricLookup(t *testing.T) {
	s := testServer(t)
	storedReport(t, s, "run-1")
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/run-1/metrics?q=mrr", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "0.75") {
		t.Errorf("expected MRR value in body: %s", rec.Body.String())
	}
}

func TestReportMetricLookupAbsent(t *testing.T) {
	s := testServer(t)
	storedReport(t, s, "run-1")
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/run-1/metrics?q=hits@10.head", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for absent metric, got %d", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/resolve?q=h@10.head.best", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var wrapped WrappedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &wrapped); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	data := wrapped.Data.(map[string]interface{})
	if data["name"] != "hits_at_k" {
		t.Errorf("expected hits_at_k, got %v", data["name"])
	}
	if data["side"] != "head" {
		t.Errorf("expected head, got %v", data["side"])
	}
	if data["rank_type"] != "optimistic" {
		t.Errorf("expected optimistic, got %v", data["rank_type"])
	}
	if data["k"] != float64(10) {
		t.Errorf("expected k=10, got %v", data["k"])
	}
}

func TestResolveEndpointInvalid(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/resolve?q=not+a+metric..", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid query, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/resolve", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing query, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)
	handler := s.setupRoutes()

	// Generate some traffic first.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "kge_http_requests_total") {
		t.Errorf("expected request counter in output: %s", body[:min(len(body), 400)])
	}
	if !strings.Contains(body, "kge_uptime_seconds") {
		t.Error("expected uptime gauge in output")
	}
}

// waitForReport polls the store until the report shows up or the deadline
// passes; memory bus handlers run asynchronously.
func waitForReport(t *testing.T, s *Server, runID string) *report.RunReport {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rep, err := s.Store().Get(context.Background(), runID)
		if err == nil {
			return rep
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("report %s was not persisted from the bus", runID)
	return nil
}

func TestRunFinishedEventPersistsReport(t *testing.T) {
	s := testServer(t)

	payload := bus.RunFinishedPayload{
		NumTriples: 5,
		BatchSize:  2,
		Filtered:   true,
		DurationMs: 120,
		Metrics: map[string]float64{
			"both.realistic.arithmetic_mean_rank": 2.0,
			"head.optimistic.hits_at_10":          0.8,
		},
	}
	event := bus.NewEvent(bus.TopicRunFinished, "test", "run-bus", payload)
	if err := s.Bus().Publish(context.Background(), bus.TopicRunFinished, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	rep := waitForReport(t, s, "run-bus")
	if rep.NumTriples != 5 || rep.BatchSize != 2 || !rep.Filtered || rep.DurationMs != 120 {
		t.Errorf("unexpected report fields: %+v", rep)
	}
	got, err := rep.Result.Get("mean_rank")
	if err != nil {
		t.Fatalf("Get(mean_rank) error = %v", err)
	}
	if got != 2.0 {
		t.Errorf("mean_rank = %v, want 2.0", got)
	}
}

func TestRunFinishedEventFromJSONPayload(t *testing.T) {
	s := testServer(t)

	// A Kafka consumer hands the handler a decoded JSON map, not the
	// typed payload struct.
	event := bus.NewEvent(bus.TopicRunFinished, "test", "run-json", map[string]interface{}{
		"num_triples": float64(3),
		"batch_size":  float64(1),
		"filtered":    false,
		"duration_ms": float64(40),
		"metrics": map[string]interface{}{
			"both.realistic.inverse_harmonic_mean_rank": 0.5,
		},
	})
	if err := s.Bus().Publish(context.Background(), bus.TopicRunFinished, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	rep := waitForReport(t, s, "run-json")
	if rep.NumTriples != 3 {
		t.Errorf("NumTriples = %d, want 3", rep.NumTriples)
	}
	got, err := rep.Result.Get("mrr")
	if err != nil {
		t.Fatalf("Get(mrr) error = %v", err)
	}
	if got != 0.5 {
		t.Errorf("mrr = %v, want 0.5", got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := testServer(t)
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop on unstarted server failed: %v", err)
	}
}
