package models

import (
	"math"
	"sort"
)

// ServiceMetrics accumulates request statistics for one service. The full
// duration sequence is retained so percentiles stay exact.
type ServiceMetrics struct {
	ServiceName   string
	RequestCount  int
	ErrorCount    int
	TotalDuration float64
	Durations     []float64
}

// NewServiceMetrics creates an empty metrics aggregate for a service.
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{ServiceName: serviceName}
}

// Record admits one observed request.
func (m *ServiceMetrics) Record(duration float64, isError bool) {
	m.RequestCount++
	m.TotalDuration += duration
	m.Durations = append(m.Durations, duration)
	if isError {
		m.ErrorCount++
	}
}

// ErrorRate returns errors/requests, or 0 when nothing was recorded.
func (m *ServiceMetrics) ErrorRate() float64 {
	if m.RequestCount == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.RequestCount)
}

// AvgDuration returns the mean request duration, or 0 when nothing was recorded.
func (m *ServiceMetrics) AvgDuration() float64 {
	if m.RequestCount == 0 {
		return 0
	}
	return m.TotalDuration / float64(m.RequestCount)
}

// Percentile returns the nearest-rank percentile of the recorded durations.
// The sample is sorted ascending and indexed at floor(n*p/100), clamped to
// the valid range. No interpolation.
func (m *ServiceMetrics) Percentile(p float64) float64 {
	return NearestRank(m.Durations, p)
}

// Clone returns a deep copy safe to hand out after the aggregator lock is released.
func (m *ServiceMetrics) Clone() *ServiceMetrics {
	out := &ServiceMetrics{
		ServiceName:   m.ServiceName,
		RequestCount:  m.RequestCount,
		ErrorCount:    m.ErrorCount,
		TotalDuration: m.TotalDuration,
	}
	out.Durations = append(out.Durations, m.Durations...)
	return out
}

// NearestRank computes the nearest-rank percentile of an unsorted sample.
// Returns 0 for an empty sample.
func NearestRank(sample []float64, p float64) float64 {
	n := len(sample)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(n) * p / 100))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// Mean returns the arithmetic mean of the sample, or 0 when empty.
func Mean(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	var sum float64
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}
