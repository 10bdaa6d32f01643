package processor

import (
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/span"
)

// groupState is the persisted form of one group.
type groupState struct {
	LastSeen  int64
	KeyValues []span.KeyValue
	Metrics   map[string]*MetricState
}

// SpanState is the persisted form of a SpanProcessor.
type SpanState struct {
	Groups map[span.GroupKey]groupState
}

// group is one distinct combination of group-key values: its own
// last-seen timestamp (for cleanup) and one Metric processor per
// configured metric name.
type group struct {
	lastSeen  int64
	keyValues []span.KeyValue
	metrics   map[string]*Metric
}

func newGroupMetrics(t int64, cfg SpanConfig) map[string]*Metric {
	out := make(map[string]*Metric, len(cfg.Metrics))
	for name, mc := range cfg.Metrics {
		out[name] = NewMetric(t, mc)
	}
	return out
}

// SpanProcessor groups spans routed to one named configuration by their
// extracted group key and runs each group's metrics independently (spec
// §4.2/§4.6).
type SpanProcessor struct {
	config SpanConfig
	groups map[span.GroupKey]*group
}

// NewSpanProcessor builds an empty processor for config.
func NewSpanProcessor(cfg SpanConfig) *SpanProcessor {
	return &SpanProcessor{config: cfg, groups: make(map[span.GroupKey]*group)}
}

// Update reconciles against a config change: a changed group-key set
// invalidates every existing group (the key tuples it was keyed by no
// longer mean the same thing), so all groups are dropped and the
// processor starts fresh. An unchanged key set preserves every group,
// reconciling each one's per-metric processors against the new metric
// configuration in place.
func (p *SpanProcessor) Update(t int64, cfg SpanConfig) *SpanProcessor {
	if !p.config.Key.Equal(cfg.Key) {
		return NewSpanProcessor(cfg)
	}
	out := &SpanProcessor{config: cfg, groups: make(map[span.GroupKey]*group, len(p.groups))}
	for gk, g := range p.groups {
		ng := &group{lastSeen: g.lastSeen, keyValues: g.keyValues, metrics: make(map[string]*Metric, len(cfg.Metrics))}
		for name, mc := range cfg.Metrics {
			if m, ok := g.metrics[name]; ok {
				ng.metrics[name] = m.Update(t, mc)
			} else {
				ng.metrics[name] = NewMetric(t, mc)
			}
		}
		out.groups[gk] = ng
	}
	return out
}

// LoadSpanProcessor restores a processor from persisted state. Legacy
// schema migration (backfilling a missing last_seen) is the persistence
// layer's responsibility, not this function's: by the time state
// reaches here every group already has a resolved LastSeen.
func LoadSpanProcessor(t int64, state *SpanState, cfg SpanConfig) *SpanProcessor {
	p := &SpanProcessor{config: cfg, groups: make(map[span.GroupKey]*group)}
	if state == nil {
		return p
	}
	for gk, gs := range state.Groups {
		metrics := make(map[string]*Metric, len(cfg.Metrics))
		for name, mc := range cfg.Metrics {
			var ms *MetricState
			if gs.Metrics != nil {
				ms = gs.Metrics[name]
			}
			metrics[name] = LoadMetric(t, ms, mc)
		}
		p.groups[gk] = &group{lastSeen: gs.LastSeen, keyValues: gs.KeyValues, metrics: metrics}
	}
	return p
}

// Save snapshots every group for persistence.
func (p *SpanProcessor) Save() *SpanState {
	out := &SpanState{Groups: make(map[span.GroupKey]groupState, len(p.groups))}
	for gk, g := range p.groups {
		ms := make(map[string]*MetricState, len(g.metrics))
		for name, m := range g.metrics {
			ms[name] = m.Save()
		}
		out.Groups[gk] = groupState{LastSeen: g.lastSeen, KeyValues: g.keyValues, Metrics: ms}
	}
	return out
}

// Insert extracts this span's group key, creating the group on first
// sight, and folds the span into every metric in that group. LastSeen
// is refreshed on every insert, not only at group creation (spec §3) —
// a span arriving against an existing group keeps it alive for cleanup
// purposes exactly as a brand new group would.
func (p *SpanProcessor) Insert(t int64, s *span.Span, parent *span.Span, children []*span.Span) {
	values, gk := p.config.Key.Extract(s, parent)
	g, ok := p.groups[gk]
	if !ok {
		g = &group{lastSeen: t, keyValues: values, metrics: newGroupMetrics(t, p.config)}
		p.groups[gk] = g
	}
	g.lastSeen = t
	for _, m := range g.metrics {
		m.Insert(t, s, parent, children)
	}
}

// Sample emits every group's every metric, labelled with configName and
// that group's key values.
func (p *SpanProcessor) Sample(configName string, emit func(metrics.Point)) {
	for _, g := range p.groups {
		for metricName, m := range g.metrics {
			mn, kv := metricName, g.keyValues
			m.Sample(func(args metrics.Args, value float64) {
				emit(metrics.NewPoint(mn, args, configName, p.config.Key, kv, value))
			})
		}
	}
}

// Cleanup drops every group not seen since t (spec §5: groups idle past
// the retention horizon are forgotten).
func (p *SpanProcessor) Cleanup(t int64) {
	for gk, g := range p.groups {
		if g.lastSeen < t {
			delete(p.groups, gk)
		}
	}
}

// GroupCount reports how many distinct groups this configuration currently holds.
func (p *SpanProcessor) GroupCount() int {
	return len(p.groups)
}
