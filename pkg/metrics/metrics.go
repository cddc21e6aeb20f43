// Package metrics registers the Prometheus collectors shared by the
// Resolver, the Type-Check Worker Pool, and the four caches, exposed at
// /metrics on the dev server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kriollo/versacompile/pkg/cache"
	"github.com/kriollo/versacompile/pkg/resolver"
	"github.com/kriollo/versacompile/pkg/typecheck"
)

// Registry owns a dedicated Prometheus registry (not the global default,
// so library consumers embedding this module never collide with their
// own /metrics registrations) and the gauges/counters refreshed from
// each component's own snapshot accessors.
type Registry struct {
	reg *prometheus.Registry

	resolverResolutions prometheus.Gauge
	resolverHits        prometheus.Gauge
	resolverMisses      prometheus.Gauge
	resolverAvgResolveNS prometheus.Gauge

	poolSize      prometheus.Gauge
	poolBusy      prometheus.Gauge
	poolTotal     prometheus.Gauge
	poolCompleted prometheus.Gauge
	poolFailed    prometheus.Gauge
	poolSuccess   prometheus.Gauge

	cacheEntries *prometheus.GaugeVec
	cacheBytes   *prometheus.GaugeVec
	cacheHits    *prometheus.GaugeVec
	cacheMisses  *prometheus.GaugeVec

	refreshHook func()
}

// New builds a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	namespace := "versacompile"

	r := &Registry{
		reg: reg,
		resolverResolutions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "resolver", Name: "resolutions_total", Help: "total module/alias resolutions performed",
		}),
		resolverHits: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "resolver", Name: "cache_hits_total", Help: "resolution cache hits",
		}),
		resolverMisses: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "resolver", Name: "cache_misses_total", Help: "resolution cache misses",
		}),
		resolverAvgResolveNS: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "resolver", Name: "avg_resolve_duration_ns", Help: "running average resolve duration in nanoseconds",
		}),
		poolSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "typecheck", Name: "pool_size", Help: "current worker pool size",
		}),
		poolBusy: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "typecheck", Name: "pool_busy", Help: "workers holding at least one pending task",
		}),
		poolTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "typecheck", Name: "tasks_total", Help: "total type-check tasks dispatched",
		}),
		poolCompleted: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "typecheck", Name: "tasks_completed", Help: "type-check tasks completed successfully",
		}),
		poolFailed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "typecheck", Name: "tasks_failed", Help: "type-check tasks that errored or timed out",
		}),
		poolSuccess: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "typecheck", Name: "success_rate", Help: "completed / total, 1.0 when no tasks have run",
		}),
		cacheEntries: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "entries", Help: "entry count per cache kind",
		}, []string{"kind"}),
		cacheBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "bytes", Help: "byte footprint per cache kind",
		}, []string{"kind"}),
		cacheHits: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total", Help: "hits per cache kind",
		}, []string{"kind"}),
		cacheMisses: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total", Help: "misses per cache kind",
		}, []string{"kind"}),
	}
	return r
}

// SetRefreshHook installs a callback run immediately before every
// /metrics scrape, used to pull fresh snapshots from the Resolver,
// Worker Pool, caches, and Orchestrator, none of which this package
// holds a reference to.
func (r *Registry) SetRefreshHook(fn func()) {
	r.refreshHook = fn
}

// Handler returns the HTTP handler for this registry's /metrics endpoint,
// intended to be served on a separate listener gated by --metrics-addr.
// If a refresh hook was installed, it runs before every scrape so gauges
// never go stale between compiles.
func (r *Registry) Handler() http.Handler {
	base := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.refreshHook != nil {
			r.refreshHook()
		}
		base.ServeHTTP(w, req)
	})
}

// RefreshResolver updates the resolver gauges from a point-in-time
// snapshot.
func (r *Registry) RefreshResolver(m resolver.Metrics) {
	r.resolverResolutions.Set(float64(m.Resolutions))
	r.resolverHits.Set(float64(m.Hits))
	r.resolverMisses.Set(float64(m.Misses))
	r.resolverAvgResolveNS.Set(float64(m.AvgResolveTime().Nanoseconds()))
}

// RefreshPool updates the worker pool gauges from a point-in-time
// snapshot.
func (r *Registry) RefreshPool(m typecheck.Metrics, size, busy int) {
	r.poolSize.Set(float64(size))
	r.poolBusy.Set(float64(busy))
	r.poolTotal.Set(float64(m.TotalTasks))
	r.poolCompleted.Set(float64(m.Completed))
	r.poolFailed.Set(float64(m.Failed))
	r.poolSuccess.Set(m.SuccessRate())
}

// RefreshCaches updates the per-cache-kind gauges from a cache.Snapshot.
func (r *Registry) RefreshCaches(s cache.Snapshot) {
	r.setCacheMetrics("parse", s.Parse)
	r.setCacheMetrics("transform", s.Transform)
	r.setCacheMetrics("resolution", s.Resolution)
	r.setCacheMetrics("typecheck", s.TypeCheck)
}

func (r *Registry) setCacheMetrics(kind string, m cache.Metrics) {
	r.cacheEntries.WithLabelValues(kind).Set(float64(m.Entries))
	r.cacheBytes.WithLabelValues(kind).Set(float64(m.Bytes))
	r.cacheHits.WithLabelValues(kind).Set(float64(m.Hits))
	r.cacheMisses.WithLabelValues(kind).Set(float64(m.Misses))
}
