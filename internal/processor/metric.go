package processor

import (
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/span"
)

// MetricState is the persisted form of a Metric processor.
type MetricState struct {
	Source *SourceState
	Stats  *StatsState
}

// Metric couples one metric's observation source to the statistics it
// feeds (spec §4.3-4.4): every value the source extracts from a span is
// forwarded straight into the statistics fan-out.
type Metric struct {
	config MetricConfig
	source *Source
	stats  *Stats
}

// NewMetric builds a fresh Metric for config.
func NewMetric(t int64, cfg MetricConfig) *Metric {
	return &Metric{config: cfg, source: NewSource(t, cfg.Source), stats: NewStats(t, cfg.Stats)}
}

// Update reconciles both the source and the statistics fan-out against
// cfg.
func (m *Metric) Update(t int64, cfg MetricConfig) *Metric {
	return &Metric{config: cfg, source: m.source.Update(t, cfg.Source), stats: m.stats.Update(t, cfg.Stats)}
}

// LoadMetric restores a Metric from persisted state.
func LoadMetric(t int64, state *MetricState, cfg MetricConfig) *Metric {
	var sourceState *SourceState
	var statsState *StatsState
	if state != nil {
		sourceState = state.Source
		statsState = state.Stats
	}
	return &Metric{config: cfg, source: LoadSource(t, sourceState, cfg.Source), stats: LoadStats(t, statsState, cfg.Stats)}
}

// Save snapshots the metric for persistence.
func (m *Metric) Save() *MetricState {
	return &MetricState{Source: m.source.Save(), Stats: m.stats.Save()}
}

// Insert extracts this metric's observation(s) from (s, parent,
// children) and folds each one into the statistics fan-out at t.
func (m *Metric) Insert(t int64, s *span.Span, parent *span.Span, children []*span.Span) {
	m.source.Insert(t, s, parent, children, func(value float64) {
		m.stats.Insert(t, value)
	})
}

// Sample emits the source's own directly-sampled metric (if any) and
// every enabled statistics sub-processor's samples.
func (m *Metric) Sample(metric func(metrics.Args, float64)) {
	m.source.Sample(metric)
	m.stats.Sample(metric)
}
