package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voltagegpu",
		Subsystem: "ledger",
		Name:      "entries_total",
		Help:      "Ledger entries appended, by kind.",
	}, []string{"kind"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voltagegpu",
		Subsystem: "orchestrator",
		Name:      "state_transitions_total",
		Help:      "Instance state transitions, by target state.",
	}, []string{"to"})

	UpstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voltagegpu",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Upstream provider calls, by operation and outcome.",
	}, []string{"op", "outcome"})

	DegradedInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "voltagegpu",
		Subsystem: "orchestrator",
		Name:      "degraded_instances",
		Help:      "Instances currently flagged degraded by reconciliation.",
	})

	CatalogStale = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "voltagegpu",
		Subsystem: "catalog",
		Name:      "stale",
		Help:      "1 when the catalog cache is serving stale or unknown data.",
	})
)
