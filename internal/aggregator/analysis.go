package aggregator

import (
	"sort"

	"tracagg/internal/models"
)

// OperationStats is one row of the slowest-operations report.
type OperationStats struct {
	ServiceName   string  `json:"service_name"`
	OperationName string  `json:"operation_name"`
	MeanDuration  float64 `json:"mean_duration"`
	SampleCount   int     `json:"sample_count"`
}

// OperationErrors is one row of the error-prone-operations report.
type OperationErrors struct {
	ServiceName   string  `json:"service_name"`
	OperationName string  `json:"operation_name"`
	ErrorRate     float64 `json:"error_rate"`
	ErrorCount    int     `json:"error_count"`
	SampleCount   int     `json:"sample_count"`
}

// PathStep is one hop of a critical path in a trace analysis.
type PathStep struct {
	ServiceName   string  `json:"service_name"`
	OperationName string  `json:"operation_name"`
	Duration      float64 `json:"duration"`
}

// ServiceShare is one service's slice of a trace's time. The duration is a
// plain sum over that service's spans, so shares across services can total
// more than 100% when spans overlap in time.
type ServiceShare struct {
	Duration float64 `json:"duration"`
	Percent  float64 `json:"percent"`
}

// TraceAnalysis is the full analytical view of a single trace.
type TraceAnalysis struct {
	TraceID              string                  `json:"trace_id"`
	Duration             float64                 `json:"duration"`
	SpanCount            int                     `json:"span_count"`
	ServiceCount         int                     `json:"service_count"`
	Services             []string                `json:"services"`
	HasErrors            bool                    `json:"has_errors"`
	CriticalPath         []PathStep              `json:"critical_path"`
	CriticalPathDuration float64                 `json:"critical_path_duration"`
	ServiceBreakdown     map[string]ServiceShare `json:"service_breakdown"`
}

// Summary holds store-wide counts and per-trace duration percentiles.
type Summary struct {
	TraceCount     int     `json:"trace_count"`
	SpanCount      int     `json:"span_count"`
	ErrorCount     int     `json:"error_count"`
	ServiceCount   int     `json:"service_count"`
	MeanDuration   float64 `json:"mean_duration"`
	MedianDuration float64 `json:"median_duration"`
	P95Duration    float64 `json:"p95_duration"`
	P99Duration    float64 `json:"p99_duration"`
}

type operationKey struct {
	service   string
	operation string
}

type operationAgg struct {
	totalDuration float64
	count         int
	errors        int
}

// groupOperations buckets every stored span by (service, operation).
// Caller holds the lock.
func (s *state) groupOperations() map[operationKey]*operationAgg {
	groups := make(map[operationKey]*operationAgg)
	for _, traceID := range s.order {
		for _, span := range s.traces[traceID].Spans {
			key := operationKey{service: span.ServiceName, operation: span.OperationName}
			agg, ok := groups[key]
			if !ok {
				agg = &operationAgg{}
				groups[key] = agg
			}
			agg.totalDuration += span.Duration
			agg.count++
			if span.IsError() {
				agg.errors++
			}
		}
	}
	return groups
}

// SlowestOperations returns up to limit (service, operation) groups ordered
// by mean duration descending, then service and operation name ascending so
// ties are reproducible.
func (a *Aggregator) SlowestOperations(limit int) []OperationStats {
	a.mu.Lock()
	groups := a.state.groupOperations()
	a.mu.Unlock()

	results := make([]OperationStats, 0, len(groups))
	for key, agg := range groups {
		results = append(results, OperationStats{
			ServiceName:   key.service,
			OperationName: key.operation,
			MeanDuration:  agg.totalDuration / float64(agg.count),
			SampleCount:   agg.count,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].MeanDuration != results[j].MeanDuration {
			return results[i].MeanDuration > results[j].MeanDuration
		}
		if results[i].ServiceName != results[j].ServiceName {
			return results[i].ServiceName < results[j].ServiceName
		}
		return results[i].OperationName < results[j].OperationName
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// ErrorProneOperations returns up to limit (service, operation) groups
// ordered by error rate descending, with the same deterministic tie-break as
// SlowestOperations.
func (a *Aggregator) ErrorProneOperations(limit int) []OperationErrors {
	a.mu.Lock()
	groups := a.state.groupOperations()
	a.mu.Unlock()

	results := make([]OperationErrors, 0, len(groups))
	for key, agg := range groups {
		results = append(results, OperationErrors{
			ServiceName:   key.service,
			OperationName: key.operation,
			ErrorRate:     float64(agg.errors) / float64(agg.count),
			ErrorCount:    agg.errors,
			SampleCount:   agg.count,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].ErrorRate != results[j].ErrorRate {
			return results[i].ErrorRate > results[j].ErrorRate
		}
		if results[i].ServiceName != results[j].ServiceName {
			return results[i].ServiceName < results[j].ServiceName
		}
		return results[i].OperationName < results[j].OperationName
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// AnalyzeTrace returns the analytical view of one trace, or ErrTraceNotFound.
// A cycle in the span tree fails only this query.
func (a *Aggregator) AnalyzeTrace(traceID string) (*TraceAnalysis, error) {
	a.mu.Lock()
	stored, ok := a.state.traces[traceID]
	if !ok {
		a.mu.Unlock()
		return nil, ErrTraceNotFound
	}
	trace := stored.Clone()
	a.mu.Unlock()

	pathSpans, pathDuration, err := trace.CriticalPath()
	if err != nil {
		return nil, err
	}
	path := make([]PathStep, 0, len(pathSpans))
	for _, span := range pathSpans {
		path = append(path, PathStep{
			ServiceName:   span.ServiceName,
			OperationName: span.OperationName,
			Duration:      span.Duration,
		})
	}

	breakdown := make(map[string]ServiceShare, len(trace.Services))
	for _, span := range trace.Spans {
		share := breakdown[span.ServiceName]
		share.Duration += span.Duration
		breakdown[span.ServiceName] = share
	}
	for service, share := range breakdown {
		if trace.Duration > 0 {
			share.Percent = share.Duration / trace.Duration * 100
		}
		breakdown[service] = share
	}

	return &TraceAnalysis{
		TraceID:              trace.TraceID,
		Duration:             trace.Duration,
		SpanCount:            trace.SpanCount,
		ServiceCount:         len(trace.Services),
		Services:             trace.ServiceList(),
		HasErrors:            trace.HasErrors(),
		CriticalPath:         path,
		CriticalPathDuration: pathDuration,
		ServiceBreakdown:     breakdown,
	}, nil
}

// SummaryStatistics aggregates counts and nearest-rank percentiles of
// per-trace durations across the whole store.
func (a *Aggregator) SummaryStatistics() Summary {
	a.mu.Lock()
	durations := make([]float64, 0, len(a.state.order))
	summary := Summary{
		TraceCount:   len(a.state.traces),
		ServiceCount: len(a.state.services),
	}
	for _, traceID := range a.state.order {
		trace := a.state.traces[traceID]
		summary.SpanCount += trace.SpanCount
		summary.ErrorCount += trace.ErrorCount
		durations = append(durations, trace.Duration)
	}
	a.mu.Unlock()

	summary.MeanDuration = models.Mean(durations)
	summary.MedianDuration = models.NearestRank(durations, 50)
	summary.P95Duration = models.NearestRank(durations, 95)
	summary.P99Duration = models.NearestRank(durations, 99)
	return summary
}
