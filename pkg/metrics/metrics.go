package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector-level counters and gauges, registered on the default
// registry and served by the operational HTTP server at /metrics.
var (
	PollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boincwatch",
		Name:      "poll_cycles_total",
		Help:      "Number of completed fleet poll cycles.",
	})

	HostState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boincwatch",
		Name:      "host_state",
		Help:      "Last observed state per host (1 for the current state).",
	}, []string{"host", "state"})

	SnapshotUpsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boincwatch",
		Name:      "snapshot_upsert_failures_total",
		Help:      "Number of snapshot rows that failed to persist.",
	})

	RollupRowsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boincwatch",
		Name:      "rollup_rows_published_total",
		Help:      "Rollup rows accepted by the downstream stats API.",
	}, []string{"kind"})

	RollupPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boincwatch",
		Name:      "rollup_publish_failures_total",
		Help:      "Rollup rows rejected by the downstream stats API.",
	}, []string{"kind"})

	TaskFactsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boincwatch",
		Name:      "task_facts_upserted_total",
		Help:      "Task fact rows written by the collection job.",
	})
)
