package streaming

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics summarizes one committed batch, retained in a bounded
// ring buffer sized by the ambient ui.maxBatches config key.
type QueryMetrics struct {
	BatchID        int64
	StartOffset    string
	EndOffset      string
	NumSources     int
	ProcessingTime time.Duration
	CompletedAt    time.Time
}

// Metrics holds the execution loop's prometheus instruments.
type Metrics struct {
	batchesCompleted prometheus.Counter
	batchesFailed    prometheus.Counter
	batchDuration    prometheus.Histogram
	sourcesPerBatch  prometheus.Histogram
}

// NewMetrics creates and registers the loop's metrics against reg, or a
// private registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		batchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore", Subsystem: "execution_loop",
			Name: "batches_completed_total", Help: "Total number of batches successfully committed to the sink.",
		}),
		batchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore", Subsystem: "execution_loop",
			Name: "batches_failed_total", Help: "Total number of batches that failed plan execution or sink commit.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamcore", Subsystem: "execution_loop",
			Name: "batch_duration_seconds", Help: "Wall-clock time to construct, execute, and commit one batch.",
			Buckets: prometheus.DefBuckets,
		}),
		sourcesPerBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamcore", Subsystem: "execution_loop",
			Name: "sources_per_batch", Help: "Number of sources that contributed new data to a batch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
	}
	for _, c := range []prometheus.Collector{m.batchesCompleted, m.batchesFailed, m.batchDuration, m.sourcesPerBatch} {
		_ = reg.Register(c)
	}
	return m
}

// history is a bounded ring buffer of QueryMetrics, sized by ui.maxBatches.
type history struct {
	mu    sync.Mutex
	max   int
	items []QueryMetrics
}

func newHistory(max int) *history {
	if max <= 0 {
		max = 100
	}
	return &history{max: max}
}

func (h *history) add(m QueryMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, m)
	if len(h.items) > h.max {
		h.items = h.items[len(h.items)-h.max:]
	}
}

// Snapshot returns the retained batch metrics, oldest first.
func (h *history) Snapshot() []QueryMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]QueryMetrics, len(h.items))
	copy(out, h.items)
	return out
}
