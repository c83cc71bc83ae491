// Prometheus collectors for the acquisition engine. The API-call
// counter exists for observability only; nothing depends on it for
// correctness.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the process-wide counters shared by the origin
// client, the service layer and the pipeline.
type Collector struct {
	apiCalls       prometheus.Counter
	banAlerts      prometheus.Counter
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	artifactsBuilt *prometheus.CounterVec
	pagesSkipped   prometheus.Counter
}

// NewCollector creates the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangapipe_origin_api_calls_total",
			Help: "Successful requests issued to the origin API.",
		}),
		banAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangapipe_origin_ban_alerts_total",
			Help: "403 responses logged as possible bans.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangapipe_cache_hits_total",
			Help: "Cache hits by cache name.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangapipe_cache_misses_total",
			Help: "Cache misses by cache name.",
		}, []string{"cache"}),
		artifactsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mangapipe_artifacts_built_total",
			Help: "Artifacts produced by the pipeline, by format.",
		}, []string{"format"}),
		pagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mangapipe_pages_skipped_total",
			Help: "Pages skipped after download or decode failures.",
		}),
	}

	reg.MustRegister(
		c.apiCalls,
		c.banAlerts,
		c.cacheHits,
		c.cacheMisses,
		c.artifactsBuilt,
		c.pagesSkipped,
	)

	return c
}

func (c *Collector) APICall()                  { c.apiCalls.Inc() }
func (c *Collector) BanAlert()                 { c.banAlerts.Inc() }
func (c *Collector) CacheHit(cache string)     { c.cacheHits.WithLabelValues(cache).Inc() }
func (c *Collector) CacheMiss(cache string)    { c.cacheMisses.WithLabelValues(cache).Inc() }
func (c *Collector) ArtifactBuilt(format string) {
	c.artifactsBuilt.WithLabelValues(format).Inc()
}
func (c *Collector) PageSkipped() { c.pagesSkipped.Inc() }
