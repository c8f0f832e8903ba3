// Package metrics provides Prometheus metrics for gocontacts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gocontacts"

var (
	// BuildsTotal counts record builds by mode (insert, update) and status.
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Total contact builds",
		},
		[]string{"mode", "status"},
	)

	// BuildLatency tracks build duration including the batch apply.
	BuildLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Contact build latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// StoreOperations counts batch operations by kind.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total store operations submitted in batches",
		},
		[]string{"kind"},
	)

	// DetectorCycles counts detector cycles by strategy and status.
	DetectorCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_cycles_total",
			Help:      "Total change detector cycles",
		},
		[]string{"strategy", "status"}, // status: "changed", "unchanged" or "error"
	)

	// DetectorChanges counts reported logical ids by change kind.
	DetectorChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_changes_total",
			Help:      "Total logical ids reported as added, removed or modified",
		},
		[]string{"kind"},
	)

	// BaselineSize tracks the number of logical ids in the detector baseline.
	BaselineSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "baseline_logical_records",
			Help:      "Logical records in the detector baseline",
		},
	)

	// CommandsTotal counts dispatched commands by name and status.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total dispatched commands",
		},
		[]string{"cmd", "status"},
	)

	// GroupsCreated counts groups created on first use of a label.
	GroupsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Total groups created by label resolution",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveBuild records a finished build.
func ObserveBuild(mode string, latencySeconds float64, err error) {
	BuildsTotal.WithLabelValues(mode, status(err)).Inc()
	BuildLatency.Observe(latencySeconds)
}

// AddStoreOperation records one submitted operation.
func AddStoreOperation(kind string) {
	StoreOperations.WithLabelValues(kind).Inc()
}

// ObserveDetectorCycle records a detector cycle and the sizes of its
// change subsets.
func ObserveDetectorCycle(strategy string, added, removed, modified int, err error) {
	switch {
	case err != nil:
		DetectorCycles.WithLabelValues(strategy, "error").Inc()
		return
	case added+removed+modified == 0:
		DetectorCycles.WithLabelValues(strategy, "unchanged").Inc()
	default:
		DetectorCycles.WithLabelValues(strategy, "changed").Inc()
	}
	DetectorChanges.WithLabelValues("added").Add(float64(added))
	DetectorChanges.WithLabelValues("removed").Add(float64(removed))
	DetectorChanges.WithLabelValues("modified").Add(float64(modified))
}

// SetBaselineSize records the size of the detector baseline.
func SetBaselineSize(n int) {
	BaselineSize.Set(float64(n))
}

// ObserveCommand records a dispatched command.
func ObserveCommand(cmd string, err error) {
	CommandsTotal.WithLabelValues(cmd, status(err)).Inc()
}

// IncGroupsCreated records a group creation.
func IncGroupsCreated() {
	GroupsCreated.Inc()
}
