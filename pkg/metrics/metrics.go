// Package metrics exposes Prometheus instrumentation for the aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SpansIngested counts spans admitted into the store, per service.
	SpansIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracagg_spans_ingested_total",
			Help: "Total number of spans admitted into the aggregator",
		},
		[]string{"service"},
	)

	// SpansRejected counts spans refused by validation.
	SpansRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracagg_spans_rejected_total",
			Help: "Total number of spans rejected by validation",
		},
	)

	// SnapshotImports counts successful snapshot imports.
	SnapshotImports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracagg_snapshot_imports_total",
			Help: "Total number of snapshots imported",
		},
	)

	// SnapshotExports counts snapshot exports.
	SnapshotExports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracagg_snapshot_exports_total",
			Help: "Total number of snapshots exported",
		},
	)

	// TracesStored tracks the number of traces currently held in memory.
	TracesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracagg_traces_stored",
			Help: "Number of traces currently held in the aggregator",
		},
	)
)
