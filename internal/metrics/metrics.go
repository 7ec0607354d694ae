// Package metrics holds the tile server's instrumentation points: cache
// hit/miss counters and per-layer query latency. No HTTP handler is
// wired here; callers register these with a prometheus.Registerer of
// their choosing from cmd/mvt-server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mvt",
		Name:      "cache_hits_total",
		Help:      "Number of tile cache hits, by layer.",
	}, []string{"layer"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mvt",
		Name:      "cache_misses_total",
		Help:      "Number of tile cache misses, by layer.",
	}, []string{"layer"})

	QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mvt",
		Name:      "query_duration_seconds",
		Help:      "PostGIS tile query duration, by layer.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"layer"})

	AuthDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mvt",
		Name:      "auth_denials_total",
		Help:      "Number of requests denied by the auth gate, by layer.",
	}, []string{"layer"})
)

// MustRegister registers every collector in this package with r. Callers
// do this once at startup.
func MustRegister(r prometheus.Registerer) {
	r.MustRegister(CacheHits, CacheMisses, QueryDuration, AuthDenials)
}

func RecordCacheHit(layer string)  { CacheHits.WithLabelValues(layer).Inc() }
func RecordCacheMiss(layer string) { CacheMisses.WithLabelValues(layer).Inc() }
func RecordAuthDenial(layer string) { AuthDenials.WithLabelValues(layer).Inc() }
func ObserveQuerySeconds(layer string, seconds float64) {
	QueryDuration.WithLabelValues(layer).Observe(seconds)
}
