// Package aggregator implements the in-memory distributed-trace aggregation
// engine: span ingestion, trace reconstruction, per-service statistics,
// dependency inference and the analytical queries on top of them.
package aggregator

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"tracagg/internal/models"
	"tracagg/pkg/metrics"
)

// Aggregator owns all shared trace state. A single mutex guards the trace
// map, the service metrics map and the dependency map together so one ingest
// is observed as an atomic unit; readers either hold the lock or work on
// copies taken under it.
type Aggregator struct {
	mu     sync.Mutex
	state  *state
	logger *slog.Logger
}

// state bundles the three shared structures so Clear and Import can swap
// them in one assignment.
type state struct {
	traces   map[string]*models.Trace
	order    []string // trace IDs in first-seen order
	services map[string]*models.ServiceMetrics
	deps     map[string]map[string]bool // caller -> set of callees
}

func newState() *state {
	return &state{
		traces:   make(map[string]*models.Trace),
		services: make(map[string]*models.ServiceMetrics),
		deps:     make(map[string]map[string]bool),
	}
}

// admit applies one validated span to the state. Callers hold the aggregator
// lock (or own the state exclusively, as during import replay).
func (s *state) admit(span models.Span) {
	trace, ok := s.traces[span.TraceID]
	if !ok {
		trace = models.NewTrace(span.TraceID)
		s.traces[span.TraceID] = trace
		s.order = append(s.order, span.TraceID)
	}

	// Dependency edges come from the parent span's service, so resolve the
	// parent before the new span joins the list.
	if span.ParentSpanID != "" {
		if parent := trace.FindSpan(span.ParentSpanID); parent != nil && parent.ServiceName != span.ServiceName {
			callees, ok := s.deps[parent.ServiceName]
			if !ok {
				callees = make(map[string]bool)
				s.deps[parent.ServiceName] = callees
			}
			callees[span.ServiceName] = true
		}
	}

	trace.AddSpan(span)

	svc, ok := s.services[span.ServiceName]
	if !ok {
		svc = models.NewServiceMetrics(span.ServiceName)
		s.services[span.ServiceName] = svc
	}
	svc.Record(span.Duration, span.IsError())
}

// New creates an empty aggregator. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		state:  newState(),
		logger: logger,
	}
}

// IngestSpan validates and admits one span. The trace, service metrics and
// dependency updates happen under one critical section.
func (a *Aggregator) IngestSpan(span models.Span) error {
	span.Normalize()
	if err := span.Validate(); err != nil {
		metrics.SpansRejected.Inc()
		a.logger.Warn("span rejected", "trace_id", span.TraceID, "error", err)
		return err
	}

	a.mu.Lock()
	a.state.admit(span)
	traceCount := len(a.state.traces)
	a.mu.Unlock()

	metrics.SpansIngested.WithLabelValues(span.ServiceName).Inc()
	metrics.TracesStored.Set(float64(traceCount))
	return nil
}

// IngestSpans admits spans sequentially in input order. A failing span is
// skipped without disturbing spans already admitted; all rejections are
// reported joined together.
func (a *Aggregator) IngestSpans(spans []models.Span) error {
	var errs []error
	for _, span := range spans {
		if err := a.IngestSpan(span); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetTrace returns a copy of the trace, or ErrTraceNotFound.
func (a *Aggregator) GetTrace(traceID string) (*models.Trace, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	trace, ok := a.state.traces[traceID]
	if !ok {
		return nil, ErrTraceNotFound
	}
	return trace.Clone(), nil
}

// GetServiceMetrics returns a copy of the metrics for one service, or
// ErrServiceNotFound.
func (a *Aggregator) GetServiceMetrics(serviceName string) (*models.ServiceMetrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	svc, ok := a.state.services[serviceName]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc.Clone(), nil
}

// ServiceNames returns all services with recorded metrics, sorted.
func (a *Aggregator) ServiceNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.state.services))
	for name := range a.state.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceDependencies returns a copy of the caller -> callees graph with
// callee sets sorted for stable output.
func (a *Aggregator) ServiceDependencies() map[string][]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string][]string, len(a.state.deps))
	for caller, callees := range a.state.deps {
		list := make([]string, 0, len(callees))
		for callee := range callees {
			list = append(list, callee)
		}
		sort.Strings(list)
		out[caller] = list
	}
	return out
}

// SearchFilter holds the optional predicates for SearchTraces. Zero values
// mean "not supplied"; duration bounds use pointers so 0 stays expressible.
type SearchFilter struct {
	ServiceName   string
	OperationName string
	MinDuration   *float64
	MaxDuration   *float64
	HasErrors     *bool
	MinSpanCount  int
	Limit         int
}

func (f *SearchFilter) matches(trace *models.Trace) bool {
	if f.ServiceName != "" && !trace.Services[f.ServiceName] {
		return false
	}
	if f.OperationName != "" && !trace.HasOperation(f.OperationName) {
		return false
	}
	if f.MinDuration != nil && trace.Duration < *f.MinDuration {
		return false
	}
	if f.MaxDuration != nil && trace.Duration > *f.MaxDuration {
		return false
	}
	if f.HasErrors != nil && trace.HasErrors() != *f.HasErrors {
		return false
	}
	if f.MinSpanCount > 0 && trace.SpanCount < f.MinSpanCount {
		return false
	}
	return true
}

// SearchTraces returns copies of all traces matching the AND of the supplied
// predicates, in first-seen order.
func (a *Aggregator) SearchTraces(filter SearchFilter) []*models.Trace {
	a.mu.Lock()
	defer a.mu.Unlock()

	var results []*models.Trace
	for _, traceID := range a.state.order {
		trace := a.state.traces[traceID]
		if !filter.matches(trace) {
			continue
		}
		results = append(results, trace.Clone())
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results
}

// TraceCount returns the number of traces currently stored.
func (a *Aggregator) TraceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.state.traces)
}

// Clear atomically replaces all shared structures with empty ones.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.state = newState()
	a.mu.Unlock()

	metrics.TracesStored.Set(0)
	a.logger.Info("aggregator cleared")
}
