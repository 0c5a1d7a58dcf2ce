package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"tracagg/internal/aggregator"
	"tracagg/internal/config"
	"tracagg/internal/models"
	"tracagg/internal/snapshot"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler holds the server dependencies
type Handler struct {
	cfg   *config.Config
	agg   *aggregator.Aggregator
	store *snapshot.Store // nil when snapshot archiving is disabled
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, agg *aggregator.Aggregator, store *snapshot.Store) *Handler {
	return &Handler{
		cfg:   cfg,
		agg:   agg,
		store: store,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/spans", h.HandleIngestSpan)
	r.Post("/spans/batch", h.HandleIngestSpans)
	r.Get("/traces", h.HandleSearchTraces)
	r.Get("/traces/{traceID}", h.HandleGetTrace)
	r.Get("/traces/{traceID}/analysis", h.HandleAnalyzeTrace)
	r.Get("/services", h.HandleListServices)
	r.Get("/services/{service}/metrics", h.HandleServiceMetrics)
	r.Get("/dependencies", h.HandleDependencies)
	r.Get("/operations/slowest", h.HandleSlowestOperations)
	r.Get("/operations/errors", h.HandleErrorProneOperations)
	r.Get("/stats", h.HandleStats)
	r.Get("/export", h.HandleExport)
	r.Post("/import", h.HandleImport)
	r.Post("/clear", h.HandleClear)
	r.Get("/health", h.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	if h.store != nil {
		r.Post("/snapshots", h.HandleArchiveSnapshot)
		r.Get("/snapshots", h.HandleListSnapshots)
		r.Post("/snapshots/{snapshotID}/restore", h.HandleRestoreSnapshot)
	}
}

// traceResponse is the JSON view of a trace.
type traceResponse struct {
	TraceID    string        `json:"trace_id"`
	StartTime  float64       `json:"start_time"`
	Duration   float64       `json:"duration"`
	SpanCount  int           `json:"span_count"`
	ErrorCount int           `json:"error_count"`
	Services   []string      `json:"services"`
	Spans      []models.Span `json:"spans"`
}

func toTraceResponse(t *models.Trace) traceResponse {
	return traceResponse{
		TraceID:    t.TraceID,
		StartTime:  t.StartTime,
		Duration:   t.Duration,
		SpanCount:  t.SpanCount,
		ErrorCount: t.ErrorCount,
		Services:   t.ServiceList(),
		Spans:      t.Spans,
	}
}

// serviceMetricsResponse is the JSON view of one service's statistics.
type serviceMetricsResponse struct {
	ServiceName  string  `json:"service_name"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`
	AvgDuration  float64 `json:"avg_duration"`
	P50Duration  float64 `json:"p50_duration"`
	P95Duration  float64 `json:"p95_duration"`
	P99Duration  float64 `json:"p99_duration"`
}

// HandleIngestSpan admits a single span
func (h *Handler) HandleIngestSpan(w http.ResponseWriter, r *http.Request) {
	var span models.Span
	if err := json.NewDecoder(r.Body).Decode(&span); err != nil {
		http.Error(w, "Invalid span payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.agg.IngestSpan(span); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "trace_id": span.TraceID})
}

// HandleIngestSpans admits a batch of spans, reporting per-span failures
func (h *Handler) HandleIngestSpans(w http.ResponseWriter, r *http.Request) {
	var spans []models.Span
	if err := json.NewDecoder(r.Body).Decode(&spans); err != nil {
		http.Error(w, "Invalid spans payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	err := h.agg.IngestSpans(spans)
	response := map[string]interface{}{
		"status": "accepted",
		"count":  len(spans),
	}
	status := http.StatusAccepted
	if err != nil {
		response["status"] = "partial"
		response["errors"] = err.Error()
		status = http.StatusMultiStatus
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HandleSearchTraces filters traces by the query parameters
func (h *Handler) HandleSearchTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := aggregator.SearchFilter{
		ServiceName:   q.Get("service"),
		OperationName: q.Get("operation"),
		Limit:         h.cfg.Aggregator.SearchLimit,
	}

	var parseErr error
	if v := q.Get("min_duration"); v != "" {
		filter.MinDuration, parseErr = parseFloatParam(v)
	}
	if v := q.Get("max_duration"); v != "" && parseErr == nil {
		filter.MaxDuration, parseErr = parseFloatParam(v)
	}
	if v := q.Get("has_errors"); v != "" && parseErr == nil {
		filter.HasErrors, parseErr = parseBoolParam(v)
	}
	if v := q.Get("min_spans"); v != "" && parseErr == nil {
		filter.MinSpanCount, parseErr = parseIntParam(v)
	}
	if v := q.Get("limit"); v != "" && parseErr == nil {
		filter.Limit, parseErr = parseIntParam(v)
	}
	if parseErr != nil {
		http.Error(w, "Invalid filter parameter", http.StatusBadRequest)
		return
	}

	traces := h.agg.SearchTraces(filter)
	results := make([]traceResponse, 0, len(traces))
	for _, t := range traces {
		results = append(results, toTraceResponse(t))
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":  len(results),
		"traces": results,
	})
}

// HandleGetTrace returns one trace by ID
func (h *Handler) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	trace, err := h.agg.GetTrace(traceID)
	if errors.Is(err, aggregator.ErrTraceNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(toTraceResponse(trace))
}

// HandleAnalyzeTrace returns the analytical view of one trace
func (h *Handler) HandleAnalyzeTrace(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	analysis, err := h.agg.AnalyzeTrace(traceID)
	if errors.Is(err, aggregator.ErrTraceNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to analyze trace %s: %v", traceID, err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	json.NewEncoder(w).Encode(analysis)
}

// HandleListServices returns the names of all known services
func (h *Handler) HandleListServices(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"services": h.agg.ServiceNames(),
	})
}

// HandleServiceMetrics returns the statistics for one service
func (h *Handler) HandleServiceMetrics(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	m, err := h.agg.GetServiceMetrics(service)
	if errors.Is(err, aggregator.ErrServiceNotFound) {
		http.Error(w, "Service not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(serviceMetricsResponse{
		ServiceName:  m.ServiceName,
		RequestCount: m.RequestCount,
		ErrorCount:   m.ErrorCount,
		ErrorRate:    m.ErrorRate(),
		AvgDuration:  m.AvgDuration(),
		P50Duration:  m.Percentile(50),
		P95Duration:  m.Percentile(95),
		P99Duration:  m.Percentile(99),
	})
}

// HandleDependencies returns the inferred service dependency graph
func (h *Handler) HandleDependencies(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"dependencies": h.agg.ServiceDependencies(),
	})
}

// HandleSlowestOperations returns operations ranked by mean duration
func (h *Handler) HandleSlowestOperations(w http.ResponseWriter, r *http.Request) {
	limit := h.reportLimit(r)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"operations": h.agg.SlowestOperations(limit),
	})
}

// HandleErrorProneOperations returns operations ranked by error rate
func (h *Handler) HandleErrorProneOperations(w http.ResponseWriter, r *http.Request) {
	limit := h.reportLimit(r)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"operations": h.agg.ErrorProneOperations(limit),
	})
}

// HandleStats returns store-wide summary statistics
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.agg.SummaryStatistics())
}

// HandleExport streams the full snapshot document
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	data, err := h.agg.Export()
	if err != nil {
		log.Printf("Export failed: %v", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// HandleImport replaces the store contents with the posted snapshot
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.agg.Import(data); err != nil {
		log.Printf("Import rejected: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "imported",
		"traces": h.agg.TraceCount(),
	})
}

// HandleClear empties the aggregator
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.agg.Clear()
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

// HandleArchiveSnapshot exports the current state into the snapshot archive
func (h *Handler) HandleArchiveSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := h.agg.Export()
	if err != nil {
		log.Printf("Export failed: %v", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}

	id, err := h.store.Save(r.Context(), data)
	if err != nil {
		log.Printf("Failed to archive snapshot: %v", err)
		http.Error(w, "Failed to archive snapshot", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "archived", "id": id})
}

// HandleListSnapshots lists archived snapshots
func (h *Handler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		log.Printf("Failed to list snapshots: %v", err)
		http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"snapshots": records,
	})
}

// HandleRestoreSnapshot imports an archived snapshot into the aggregator
func (h *Handler) HandleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "snapshotID")

	data, err := h.store.Load(r.Context(), id)
	if errors.Is(err, snapshot.ErrSnapshotNotFound) {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to load snapshot %s: %v", id, err)
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return
	}

	if err := h.agg.Import(data); err != nil {
		log.Printf("Restore rejected: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "restored",
		"traces": h.agg.TraceCount(),
	})
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) reportLimit(r *http.Request) int {
	limit := h.cfg.Aggregator.ReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := parseIntParam(v); err == nil {
			limit = parsed
		}
	}
	return limit
}

func parseFloatParam(v string) (*float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseBoolParam(v string) (*bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func parseIntParam(v string) (int, error) {
	return strconv.Atoi(v)
}
