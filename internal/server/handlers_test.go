package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tracagg/internal/aggregator"
	"tracagg/internal/config"
	"tracagg/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Aggregator: config.AggregatorConfig{
			SearchLimit: 100,
			ReportLimit: 10,
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *aggregator.Aggregator) {
	t.Helper()
	agg := aggregator.New(nil)
	handler := NewHandler(testConfig(), agg, nil)
	return SetupRouter(handler), agg
}

func testSpan(traceID, spanID, parentID, service, operation string, duration float64, status models.Status) models.Span {
	return models.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentID,
		ServiceName:   service,
		OperationName: operation,
		StartTime:     1000,
		Duration:      duration,
		Status:        status,
		Kind:          models.KindServer,
	}
}

func postJSON(t *testing.T, router http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleIngestSpan(t *testing.T) {
	router, agg := newTestRouter(t)

	w := postJSON(t, router, "/spans", testSpan("trace-1", "span-1", "", "api", "GET /users", 0.2, models.StatusOK))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, agg.TraceCount())

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "accepted", response["status"])
	assert.Equal(t, "trace-1", response["trace_id"])
}

func TestHandleIngestSpanInvalid(t *testing.T) {
	router, agg := newTestRouter(t)

	w := postJSON(t, router, "/spans", testSpan("trace-1", "", "", "api", "GET /users", 0.2, models.StatusOK))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, agg.TraceCount())
}

func TestHandleIngestSpanBadJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/spans", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIngestSpansBatch(t *testing.T) {
	router, agg := newTestRouter(t)

	spans := []models.Span{
		testSpan("trace-1", "span-1", "", "api", "op", 0.1, models.StatusOK),
		testSpan("trace-1", "span-2", "span-1", "db", "op", 0.05, models.StatusOK),
	}
	w := postJSON(t, router, "/spans/batch", spans)

	assert.Equal(t, http.StatusAccepted, w.Code)
	trace, err := agg.GetTrace("trace-1")
	require.NoError(t, err)
	assert.Equal(t, 2, trace.SpanCount)
}

func TestHandleIngestSpansBatchPartial(t *testing.T) {
	router, agg := newTestRouter(t)

	spans := []models.Span{
		testSpan("trace-1", "span-1", "", "api", "op", 0.1, models.StatusOK),
		testSpan("trace-1", "", "", "api", "op", 0.1, models.StatusOK),
	}
	w := postJSON(t, router, "/spans/batch", spans)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	assert.Equal(t, 1, agg.TraceCount())
}

func TestHandleGetTrace(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "span-1", "", "api", "op", 0.1, models.StatusOK)))

	w := get(router, "/traces/trace-1")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "trace-1", response["trace_id"])
	assert.Equal(t, float64(1), response["span_count"])
}

func TestHandleGetTraceNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/traces/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSearchTraces(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s1", "", "api", "op", 0.1, models.StatusOK)))
	require.NoError(t, agg.IngestSpan(testSpan("trace-2", "s2", "", "api", "op", 0.2, models.StatusError)))
	require.NoError(t, agg.IngestSpan(testSpan("trace-3", "s3", "", "db", "op", 0.3, models.StatusOK)))

	w := get(router, "/traces?has_errors=true")
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Count  int `json:"count"`
		Traces []struct {
			TraceID string `json:"trace_id"`
		} `json:"traces"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "trace-2", response.Traces[0].TraceID)

	w = get(router, "/traces?service=api&has_errors=false")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "trace-1", response.Traces[0].TraceID)
}

func TestHandleSearchTracesBadFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/traces?min_duration=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleServiceMetrics(t *testing.T) {
	router, agg := newTestRouter(t)
	for i := 0; i < 10; i++ {
		status := models.StatusOK
		if i == 0 || i == 5 {
			status = models.StatusError
		}
		require.NoError(t, agg.IngestSpan(testSpan(fmt.Sprintf("trace-%d", i), fmt.Sprintf("s-%d", i), "", "api", "op", 0.1, status)))
	}

	w := get(router, "/services/api/metrics")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(10), response["request_count"])
	assert.InDelta(t, 0.2, response["error_rate"].(float64), 1e-9)
}

func TestHandleServiceMetricsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/services/unknown/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDependencies(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s1", "", "api", "op", 0.2, models.StatusOK)))
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s2", "s1", "db", "op", 0.1, models.StatusOK)))

	w := get(router, "/dependencies")
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Dependencies map[string][]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"db"}, response.Dependencies["api"])
}

func TestHandleAnalyzeTrace(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "root", "", "api", "GET /order", 1.0, models.StatusOK)))
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "child", "root", "db", "select", 0.4, models.StatusOK)))

	w := get(router, "/traces/trace-1/analysis")
	assert.Equal(t, http.StatusOK, w.Code)

	var analysis aggregator.TraceAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.Equal(t, 2, analysis.SpanCount)
	require.Len(t, analysis.CriticalPath, 2)
	assert.InDelta(t, 1.4, analysis.CriticalPathDuration, 1e-9)
}

func TestHandleStats(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s1", "", "api", "op", 0.2, models.StatusOK)))

	w := get(router, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)

	var summary aggregator.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TraceCount)
	assert.Equal(t, 1, summary.SpanCount)
}

func TestHandleExportImport(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s1", "", "api", "op", 0.2, models.StatusOK)))

	w := get(router, "/export")
	assert.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.Bytes()

	freshRouter, freshAgg := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewBuffer(exported))
	rec := httptest.NewRecorder()
	freshRouter.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, freshAgg.TraceCount())
}

func TestHandleImportMalformed(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s1", "", "api", "op", 0.2, models.StatusOK)))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewBufferString(`{"traces": [`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, agg.TraceCount())
}

func TestHandleClear(t *testing.T) {
	router, agg := newTestRouter(t)
	require.NoError(t, agg.IngestSpan(testSpan("trace-1", "s1", "", "api", "op", 0.2, models.StatusOK)))

	req := httptest.NewRequest(http.MethodPost, "/clear", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, agg.TraceCount())
}

func TestHandleHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}
