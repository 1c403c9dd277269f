package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the ledger's Prometheus collectors.
type Metrics struct {
	ItemEvents        *prometheus.CounterVec
	AggregateDelta    *prometheus.CounterVec
	LockWait          prometheus.Histogram
	LockTimeouts      prometheus.Counter
	ConsistencyFaults prometheus.Counter
	DriftDetected     prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg creates
// unregistered collectors, which keeps tests independent of each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ItemEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "ledger",
			Name:      "item_events_total",
			Help:      "Committed item lifecycle events by type and kind.",
		}, []string{"event", "kind"}),
		AggregateDelta: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "ledger",
			Name:      "aggregate_updates_total",
			Help:      "Aggregate adjustments applied, by kind and direction.",
		}, []string{"kind", "direction"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "familybudget",
			Subsystem: "ledger",
			Name:      "user_lock_wait_seconds",
			Help:      "Time spent waiting for a per-user aggregate lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		LockTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "ledger",
			Name:      "user_lock_timeouts_total",
			Help:      "Mutations rejected because the user lock was not acquired in time.",
		}),
		ConsistencyFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "ledger",
			Name:      "consistency_faults_total",
			Help:      "Aggregate updates refused because they would break an invariant.",
		}),
		DriftDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "familybudget",
			Subsystem: "ledger",
			Name:      "aggregate_drift_total",
			Help:      "Users whose stored aggregates differ from the sum of their items.",
		}),
	}
}
