package models

import "sort"

// Trace is the mutable aggregate of all spans sharing a trace ID. Derived
// fields are recomputed on every AddSpan; callers are expected to hold the
// aggregator lock while mutating.
type Trace struct {
	TraceID    string
	Spans      []Span
	StartTime  float64
	Duration   float64
	Services   map[string]bool
	SpanCount  int
	ErrorCount int

	endTime float64
}

// NewTrace creates an empty trace aggregate for the given ID.
func NewTrace(traceID string) *Trace {
	return &Trace{
		TraceID:  traceID,
		Services: make(map[string]bool),
	}
}

// AddSpan appends a span and recomputes the trace-level derived fields.
func (t *Trace) AddSpan(span Span) {
	t.Spans = append(t.Spans, span)
	t.Services[span.ServiceName] = true
	t.SpanCount++
	if span.IsError() {
		t.ErrorCount++
	}

	if t.SpanCount == 1 || span.StartTime < t.StartTime {
		t.StartTime = span.StartTime
	}
	if t.SpanCount == 1 || span.EndTime() > t.endTime {
		t.endTime = span.EndTime()
	}
	t.Duration = t.endTime - t.StartTime
}

// FindSpan returns the span with the given ID, or nil if the trace does not
// contain it.
func (t *Trace) FindSpan(spanID string) *Span {
	for i := range t.Spans {
		if t.Spans[i].SpanID == spanID {
			return &t.Spans[i]
		}
	}
	return nil
}

// HasOperation reports whether any span in the trace carries the operation name.
func (t *Trace) HasOperation(operationName string) bool {
	for i := range t.Spans {
		if t.Spans[i].OperationName == operationName {
			return true
		}
	}
	return false
}

// HasErrors reports whether any span in the trace failed.
func (t *Trace) HasErrors() bool {
	return t.ErrorCount > 0
}

// ServiceList returns the distinct services in the trace, sorted for stable output.
func (t *Trace) ServiceList() []string {
	services := make([]string, 0, len(t.Services))
	for name := range t.Services {
		services = append(services, name)
	}
	sort.Strings(services)
	return services
}

// Clone returns a deep copy safe to hand out after the aggregator lock is released.
func (t *Trace) Clone() *Trace {
	out := &Trace{
		TraceID:    t.TraceID,
		Spans:      make([]Span, 0, len(t.Spans)),
		StartTime:  t.StartTime,
		Duration:   t.Duration,
		Services:   make(map[string]bool, len(t.Services)),
		SpanCount:  t.SpanCount,
		ErrorCount: t.ErrorCount,
		endTime:    t.endTime,
	}
	for _, span := range t.Spans {
		out.Spans = append(out.Spans, span.Clone())
	}
	for name := range t.Services {
		out.Services[name] = true
	}
	return out
}
