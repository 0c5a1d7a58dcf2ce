package aggregator

import (
	"encoding/json"
	"fmt"

	"tracagg/internal/models"
	"tracagg/pkg/metrics"
)

// snapshotDoc is the exchange format for export/import. Only traces are
// serialized; service metrics and the dependency graph are rebuilt by
// replaying the spans on import.
type snapshotDoc struct {
	Traces []traceRecord `json:"traces"`
}

type traceRecord struct {
	TraceID   string        `json:"trace_id"`
	Duration  float64       `json:"duration"`
	SpanCount int           `json:"span_count"`
	Services  []string      `json:"services"`
	Spans     []models.Span `json:"spans"`
}

// Export serializes every stored trace. The copy is taken under the lock;
// marshalling happens outside it.
func (a *Aggregator) Export() ([]byte, error) {
	a.mu.Lock()
	doc := snapshotDoc{Traces: make([]traceRecord, 0, len(a.state.order))}
	for _, traceID := range a.state.order {
		trace := a.state.traces[traceID]
		record := traceRecord{
			TraceID:   trace.TraceID,
			Duration:  trace.Duration,
			SpanCount: trace.SpanCount,
			Services:  trace.ServiceList(),
			Spans:     make([]models.Span, 0, len(trace.Spans)),
		}
		for _, span := range trace.Spans {
			record.Spans = append(record.Spans, span.Clone())
		}
		doc.Traces = append(doc.Traces, record)
	}
	a.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	metrics.SnapshotExports.Inc()
	return data, nil
}

// Import replaces the aggregator's contents with the snapshot. Every span is
// replayed through the ordinary admission path into a detached store first,
// so service metrics and dependencies are reconstructed exactly as by live
// ingestion; a malformed record aborts before live state is touched.
func (a *Aggregator) Import(data []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotParse, err)
	}

	scratch := newState()
	for _, record := range doc.Traces {
		if record.TraceID == "" {
			return fmt.Errorf("%w: trace record without trace_id", ErrSnapshotParse)
		}
		for _, span := range record.Spans {
			span.Normalize()
			if err := span.Validate(); err != nil {
				return fmt.Errorf("%w: trace %s: %v", ErrSnapshotParse, record.TraceID, err)
			}
			if span.TraceID != record.TraceID {
				return fmt.Errorf("%w: span %s belongs to trace %s, found under %s",
					ErrSnapshotParse, span.SpanID, span.TraceID, record.TraceID)
			}
			scratch.admit(span)
		}
	}

	a.mu.Lock()
	a.state = scratch
	traceCount := len(scratch.traces)
	a.mu.Unlock()

	metrics.SnapshotImports.Inc()
	metrics.TracesStored.Set(float64(traceCount))
	a.logger.Info("snapshot imported", "traces", traceCount)
	return nil
}
