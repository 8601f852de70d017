// Package metrics records tracer and engine activity in Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsCollector is the single entry point for recording metrics. It
// satisfies the engine's metrics sink.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector registers the tracer metrics with the default registry
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewMetricsCollectorWithRegistry registers the tracer metrics with registerer
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// RecordHook counts one engine hook invocation
func (mc *MetricsCollector) RecordHook(hook string) {
	mc.prometheus.hooksTotal.WithLabelValues(hook).Inc()
}

// RecordAnomaly counts one detected anomaly
func (mc *MetricsCollector) RecordAnomaly(kind string) {
	mc.prometheus.anomaliesTotal.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) SetPendingEntries(n int) {
	mc.prometheus.pendingEntries.Set(float64(n))
}

func (mc *MetricsCollector) SetTables(n int) {
	mc.prometheus.tables.Set(float64(n))
}

// RecordDrainedChain observes the hop count of a pending chain bound to its document
func (mc *MetricsCollector) RecordDrainedChain(hops int) {
	mc.prometheus.drainedHops.Observe(float64(hops))
}

func (mc *MetricsCollector) RecordTraceSuccess() {
	mc.prometheus.tracesTotal.WithLabelValues("success").Inc()
}

func (mc *MetricsCollector) RecordTraceError() {
	mc.prometheus.tracesTotal.WithLabelValues("error").Inc()
}

// RecordTraceTimeout records a trace whose page never fired its load event
func (mc *MetricsCollector) RecordTraceTimeout() {
	mc.prometheus.tracesTotal.WithLabelValues("timeout").Inc()
}

// RecordTraceDuration records trace duration in seconds
func (mc *MetricsCollector) RecordTraceDuration(seconds float64) {
	mc.prometheus.traceDuration.Observe(seconds)
}

// RecordResources observes the number of resource records of a traced page
func (mc *MetricsCollector) RecordResources(n int) {
	mc.prometheus.resources.Observe(float64(n))
}

// RecordStored counts a snapshot store write
func (mc *MetricsCollector) RecordStored(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	mc.prometheus.storedTotal.WithLabelValues(status).Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
