// Package metrics exposes Prometheus instrumentation for the event pipeline
// and the aggregator. A nil *Metrics is valid and records nothing, so
// components take metrics optionally without guarding every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed *prometheus.CounterVec
	eventsSkipped   prometheus.Counter
	eventsFailed    *prometheus.CounterVec
	eventsRetried   prometheus.Counter
	deadLetters     prometheus.Counter
	processLatency  prometheus.Histogram

	aggregatorRuns     *prometheus.CounterVec
	aggregatorDuration prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arenaboard",
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Match events applied, by mode.",
		}, []string{"mode"}),

		eventsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arenaboard",
			Subsystem: "events",
			Name:      "skipped_total",
			Help:      "Duplicate events dropped by the idempotency guard.",
		}),

		eventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arenaboard",
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Event processing failures, by kind (validation or transient).",
		}, []string{"kind"}),

		eventsRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arenaboard",
			Subsystem: "events",
			Name:      "retried_total",
			Help:      "Events re-published for another attempt.",
		}),

		deadLetters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arenaboard",
			Subsystem: "events",
			Name:      "dead_letters_total",
			Help:      "Events moved to the dead-letter stream.",
		}),

		processLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arenaboard",
			Subsystem: "events",
			Name:      "process_seconds",
			Help:      "Latency of applying one event.",
			Buckets:   prometheus.DefBuckets,
		}),

		aggregatorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arenaboard",
			Subsystem: "aggregator",
			Name:      "runs_total",
			Help:      "Aggregation runs, by outcome.",
		}, []string{"outcome"}),

		aggregatorDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arenaboard",
			Subsystem: "aggregator",
			Name:      "run_seconds",
			Help:      "Duration of one aggregation run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventProcessed records one applied event.
func (m *Metrics) EventProcessed(mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(mode).Inc()
	m.processLatency.Observe(elapsed.Seconds())
}

// EventSkipped records one deduplicated event.
func (m *Metrics) EventSkipped() {
	if m == nil {
		return
	}
	m.eventsSkipped.Inc()
}

// EventFailed records a processing failure. kind is "validation" or "transient".
func (m *Metrics) EventFailed(kind string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(kind).Inc()
}

// EventRetried records a re-published event.
func (m *Metrics) EventRetried() {
	if m == nil {
		return
	}
	m.eventsRetried.Inc()
}

// DeadLettered records an event moved to the DLQ.
func (m *Metrics) DeadLettered() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

// AggregatorRun records one aggregation run. outcome is "ok", "partial"
// (some partitions failed) or "error".
func (m *Metrics) AggregatorRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.aggregatorRuns.WithLabelValues(outcome).Inc()
	m.aggregatorDuration.Observe(elapsed.Seconds())
}
