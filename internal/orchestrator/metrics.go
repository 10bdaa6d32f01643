// Package orchestrator drives the periodic trace-fetch/sample/insert
// tick that turns the processor tree into a running service (spec §5
// "Operational semantics").
package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "anomalyd"
	tickSubsystem    = "tick"
)

// TickMetrics instruments the orchestrator's own tick loop, distinct
// from the derived metrics the processor tree emits.
type TickMetrics struct {
	TicksTotal     *prometheus.CounterVec
	TickDuration   *prometheus.HistogramVec
	TracesIngested prometheus.Counter
	SamplesEmitted prometheus.Counter
	GroupsActive   prometheus.Gauge
}

// NewTickMetrics registers tick-loop metrics against reg. Pass
// prometheus.DefaultRegisterer for normal operation; a nil reg gets its
// own fresh, unexported registry so callers that don't care about
// exposing these metrics (e.g. tests) don't have to build one.
func NewTickMetrics(reg prometheus.Registerer) *TickMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &TickMetrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tickSubsystem,
			Name:      "total",
			Help:      "Number of processing ticks, by outcome (ok, error).",
		}, []string{"outcome"}),
		TickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: tickSubsystem,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a processing tick.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"outcome"}),
		TracesIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tickSubsystem,
			Name:      "traces_ingested_total",
			Help:      "Number of traces inserted into the processor tree.",
		}),
		SamplesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: tickSubsystem,
			Name:      "samples_emitted_total",
			Help:      "Number of metric points produced by processor sampling.",
		}),
		GroupsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: tickSubsystem,
			Name:      "groups_active",
			Help:      "Number of distinct groups across every configuration after the last cleanup.",
		}),
	}
}
