package state

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the state store's prometheus instruments, shared across
// every StateStore a Provider opens.
type Metrics struct {
	commits     prometheus.Counter
	aborts      prometheus.Counter
	keysCurrent *prometheus.GaugeVec
}

// NewMetrics creates and registers the state store's metrics against reg,
// or a private registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore", Subsystem: "statestore",
			Name: "commits_total", Help: "Total successful CommitUpdates calls.",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore", Subsystem: "statestore",
			Name: "aborts_total", Help: "Total AbortUpdates calls.",
		}),
		keysCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamcore", Subsystem: "statestore",
			Name: "keys_current", Help: "Number of live keys visible after the last commit, per operator/partition.",
		}, []string{"operator_id", "partition_id"}),
	}
	for _, c := range []prometheus.Collector{m.commits, m.aborts, m.keysCurrent} {
		_ = reg.Register(c)
	}
	return m
}
