package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "tracer"

// PrometheusMetrics holds the Prometheus collectors of the tracer
type PrometheusMetrics struct {
	// Engine metrics
	hooksTotal     *prometheus.CounterVec
	anomaliesTotal *prometheus.CounterVec
	pendingEntries prometheus.Gauge
	tables         prometheus.Gauge
	drainedHops    prometheus.Histogram

	// Trace metrics
	tracesTotal   *prometheus.CounterVec
	traceDuration prometheus.Histogram
	resources     prometheus.Histogram

	// Storage metrics
	storedTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetricsWithRegistry creates the collectors and registers them with registerer
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.hooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "hooks_total",
		Help:      "Total engine hook invocations by hook",
	}, []string{"hook"}) // hook: classify, request, response, commit, load

	pm.anomaliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "anomalies_total",
		Help:      "Total anomalies detected while correlating events, by kind",
	}, []string{"kind"})

	pm.pendingEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_entries",
		Help:      "Pending top-level navigations not yet bound to a window",
	})

	pm.tables = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "window_tables",
		Help:      "Top-level contexts with a resource table",
	})

	pm.drainedHops = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "drained_chain_hops",
		Help:      "Redirect hops per pending chain bound to a document",
		Buckets:   prometheus.LinearBuckets(0, 1, 8),
	})

	pm.tracesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "traces_total",
		Help:      "Total page traces by outcome",
	}, []string{"status"}) // status: success, error, timeout

	pm.traceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trace_duration_seconds",
		Help:      "Time spent loading and tracing a page",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
	})

	pm.resources = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "resources_per_page",
		Help:      "Resource records per traced page",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	pm.storedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stored_exports_total",
		Help:      "Exports written to the snapshot store by outcome",
	}, []string{"status"})

	registerer.MustRegister(
		pm.hooksTotal,
		pm.anomaliesTotal,
		pm.pendingEntries,
		pm.tables,
		pm.drainedHops,
		pm.tracesTotal,
		pm.traceDuration,
		pm.resources,
		pm.storedTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("Tracer Prometheus metrics initialized")
	return pm
}

// ServeHTTP serves Prometheus metrics via HTTP
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
