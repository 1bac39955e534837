package receiver

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the receiver tracker's prometheus instruments. Passing nil
// to NewMetrics registers against a private registry, so unrelated
// trackers (and tests) never collide on collector names; production
// wiring should pass the process-wide registry from internal/metrics.
type Metrics struct {
	receiversRegistered   prometheus.Counter
	receiversDeregistered prometheus.Counter
	blocksAccepted        prometheus.Counter
	errorsReported        prometheus.Counter
}

// NewMetrics creates and registers the tracker's metrics. Registration
// errors (e.g. duplicate registration against a shared registry) are
// ignored; the already-registered collector is not retrieved, so on a
// duplicate the returned Metrics updates collectors that are not exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		receiversRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "receiver_tracker",
			Name:      "receivers_registered_total",
			Help:      "Total number of RegisterReceiver calls accepted.",
		}),
		receiversDeregistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "receiver_tracker",
			Name:      "receivers_deregistered_total",
			Help:      "Total number of receivers transitioned to Terminated.",
		}),
		blocksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "receiver_tracker",
			Name:      "blocks_accepted_total",
			Help:      "Total number of AddBlock calls that were durably logged and enqueued.",
		}),
		errorsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "receiver_tracker",
			Name:      "errors_reported_total",
			Help:      "Total number of ReportError calls.",
		}),
	}
	for _, c := range []prometheus.Collector{m.receiversRegistered, m.receiversDeregistered, m.blocksAccepted, m.errorsReported} {
		_ = reg.Register(c)
	}
	return m
}
