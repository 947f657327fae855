// Package metrics provides Prometheus instrumentation for the connection and
// conversion registries.
//
// A Collector registers its metrics on the Registerer it is given, so tests
// and embedding applications can use a private prometheus.Registry:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewCollector(reg)
//	r := connection.NewRegistry(store, connection.WithMetrics(m))
//
// Exposed metrics:
//   - stconn_connections_total{adapter,result}: adapter Connect calls
//   - stconn_reconnects_total{connection}: liveness failures that triggered a rebuild
//   - stconn_cache_hits_total{connection}: Connect calls served from the cache
//   - stconn_conversions_total{target,result}: conversion attempts (success, error, miss)
//   - stconn_connect_duration_seconds{adapter}: adapter Connect latency
//   - stconn_cached_connections: current number of cache entries
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stconn"

// Collector holds the registry metrics.
type Collector struct {
	connections     *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	conversions     *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	cached          prometheus.Gauge
}

// NewCollector creates a collector and registers its metrics on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		connections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Adapter connect attempts by adapter and result",
			},
			[]string{"adapter", "result"},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Cached connections rebuilt after a failed liveness check",
			},
			[]string{"connection"},
		),
		cacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Connect calls served from the connection cache",
			},
			[]string{"connection"},
		),
		conversions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Conversion attempts by target and result",
			},
			[]string{"target", "result"},
		),
		connectDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connect_duration_seconds",
				Help:      "Adapter connect latency in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"adapter"},
		),
		cached: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cached_connections",
				Help:      "Number of entries in the connection cache",
			},
		),
	}
}

// ObserveConnect records one adapter Connect call.
func (c *Collector) ObserveConnect(adapter string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.connections.WithLabelValues(adapter, result).Inc()
	c.connectDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

// ObserveReconnect records a liveness failure for connection.
func (c *Collector) ObserveReconnect(connection string) {
	c.reconnects.WithLabelValues(connection).Inc()
}

// ObserveCacheHit records a cache hit for connection.
func (c *Collector) ObserveCacheHit(connection string) {
	c.cacheHits.WithLabelValues(connection).Inc()
}

// ObserveConversion records a conversion attempt.
func (c *Collector) ObserveConversion(target, result string) {
	c.conversions.WithLabelValues(target, result).Inc()
}

// SetCached sets the current cache size.
func (c *Collector) SetCached(n int) {
	c.cached.Set(float64(n))
}

// Timer measures elapsed time for an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
