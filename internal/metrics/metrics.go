// Package metrics is the engine's Prometheus surface: a counter/gauge/
// histogram set plus a registry wrapped for fasthttp via fasthttpadaptor,
// covering orchestrator op latency, search fan-out, and Local Proxy request
// counters (§4.8, §4.10). The cache hit/miss counter and entry gauge are
// registered too, but nothing in the engine calls RecordCacheOutcome or
// SetCacheEntries, so they stay at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics exposes the engine's counters/gauges/histograms and a
// fasthttp-compatible ServeHTTP for mounting under /metrics.
type Metrics struct {
	httpHandler func(*fasthttp.RequestCtx)

	cacheRequestsTotal *prometheus.CounterVec
	cacheEntries       *prometheus.GaugeVec
	orchestratorOpDur  *prometheus.HistogramVec
	searchSitesTotal   *prometheus.CounterVec
	proxyRequestsTotal *prometheus.CounterVec
}

func New(namespace string, logger *zap.Logger) *Metrics {
	if namespace == "" {
		namespace = "moviebox"
	}

	m := &Metrics{}

	m.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total Cache.GetOrCompute calls by outcome (hit, miss, error)",
		},
		[]string{"outcome"},
	)

	m.cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current entry count per cache tier",
		},
		[]string{"tier"},
	)

	m.orchestratorOpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "op_duration_seconds",
			Help:      "Latency of home/category/detail/search/play calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	m.searchSitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "sites_total",
			Help:      "Per-site search task outcomes",
		},
		[]string{"outcome"},
	)

	m.proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Local Proxy requests by route and status class",
		},
		[]string{"route", "status"},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.cacheRequestsTotal,
		m.cacheEntries,
		m.orchestratorOpDur,
		m.searchSitesTotal,
		m.proxyRequestsTotal,
	)

	handler := promhttp.HandlerFor(prometheus.Gatherer(registry), promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
	m.httpHandler = fasthttpadaptor.NewFastHTTPHandler(handler)

	if logger != nil {
		logger.Info("prometheus metrics initialized", zap.String("namespace", namespace))
	}
	return m
}

func (m *Metrics) RecordCacheOutcome(outcome string) {
	m.cacheRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetCacheEntries(tier string, count int) {
	m.cacheEntries.WithLabelValues(tier).Set(float64(count))
}

func (m *Metrics) ObserveOrchestratorOp(op, outcome string, seconds float64) {
	m.orchestratorOpDur.WithLabelValues(op, outcome).Observe(seconds)
}

func (m *Metrics) RecordSearchSite(outcome string) {
	m.searchSitesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordProxyRequest(route, statusClass string) {
	m.proxyRequestsTotal.WithLabelValues(route, statusClass).Inc()
}

// ServeHTTP implements metricsserver.MetricsHandler.
func (m *Metrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	m.httpHandler(ctx)
}
