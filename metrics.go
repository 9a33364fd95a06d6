package respcache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricSet mirrors the teacher dcache package's Hit/Latency/Error trio,
// relabeled for the read-through/invalidation domain: hit outcomes are
// {hit, miss} for the cache GET path, Latency and Error are labeled by
// operation (get, set, expire, flush), and QueueDepth tracks the engine's
// pending cache-request queue.
type MetricSet struct {
	Hit        *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	Error      *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

var latencyBucketsMs = []float64{
	1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024,
}

// NewMetricSet builds a MetricSet and registers it against reg. Pass
// prometheus.DefaultRegisterer to match the teacher's behavior of
// registering against the global registry.
func NewMetricSet(appName string, reg prometheus.Registerer) (*MetricSet, error) {
	m := &MetricSet{
		Hit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_respcache_hit_total", appName),
			Help: "Cache GET outcomes, labeled hit or miss.",
		}, []string{"outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_respcache_latency_ms", appName),
			Help:    "Cache round-trip latency in ms, labeled by operation.",
			Buckets: latencyBucketsMs,
		}, []string{"op"}),
		Error: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_respcache_error_total", appName),
			Help: "Cache-path errors absorbed rather than surfaced to the caller, labeled by op.",
		}, []string{"op"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_respcache_pending_queue_depth", appName),
			Help: "Number of PendingCacheRequest entries currently in flight.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Hit, m.Latency, m.Error, m.QueueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Unregister removes m's collectors from reg, mirroring the teacher's
// Close-time prometheus.Unregister calls.
func (m *MetricSet) Unregister(reg prometheus.Registerer) {
	reg.Unregister(m.Hit)
	reg.Unregister(m.Latency)
	reg.Unregister(m.Error)
	reg.Unregister(m.QueueDepth)
}

const (
	hitLabelHit  = "hit"
	hitLabelMiss = "miss"
)
