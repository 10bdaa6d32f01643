package processor

import (
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/span"
)

// TraceState is the persisted form of a Trace processor.
type TraceState struct {
	Groups map[span.ConfigName]*SpanState
}

// Trace is the root of the processor tree (spec §4.1-4.2): it classifies
// each span of an ingested trace into zero or more named configurations
// via the rule list, then routes it to that configuration's
// SpanProcessor.
type Trace struct {
	config TraceConfig
	groups map[span.ConfigName]*SpanProcessor
}

// NewTrace builds a fresh processor for every configured configuration.
func NewTrace(cfg TraceConfig) *Trace {
	t := &Trace{config: cfg, groups: make(map[span.ConfigName]*SpanProcessor, len(cfg.Configs))}
	for name, sc := range cfg.Configs {
		t.groups[name] = NewSpanProcessor(sc)
	}
	return t
}

// Update reconciles every configuration's SpanProcessor against cfg: a
// configuration kept in cfg is reconciled in place, one newly added is
// created fresh, and one removed from cfg is dropped along with all of
// its groups.
func (t *Trace) Update(at int64, cfg TraceConfig) *Trace {
	out := &Trace{config: cfg, groups: make(map[span.ConfigName]*SpanProcessor, len(cfg.Configs))}
	for name, sc := range cfg.Configs {
		if p, ok := t.groups[name]; ok {
			out.groups[name] = p.Update(at, sc)
		} else {
			out.groups[name] = NewSpanProcessor(sc)
		}
	}
	return out
}

// LoadTrace restores a Trace from persisted state.
func LoadTrace(at int64, state *TraceState, cfg TraceConfig) *Trace {
	t := &Trace{config: cfg, groups: make(map[span.ConfigName]*SpanProcessor, len(cfg.Configs))}
	for name, sc := range cfg.Configs {
		var ss *SpanState
		if state != nil {
			ss = state.Groups[name]
		}
		t.groups[name] = LoadSpanProcessor(at, ss, sc)
	}
	return t
}

// Save snapshots every configuration's processor for persistence.
func (t *Trace) Save() *TraceState {
	out := &TraceState{Groups: make(map[span.ConfigName]*SpanState, len(t.groups))}
	for name, p := range t.groups {
		out.Groups[name] = p.Save()
	}
	return out
}

// index builds the per-trace lookup tables Insert needs: each span by
// id, its resolved parent (nil if root or dangling), and its direct
// children.
func index(spans []*span.Span) (bySpanID map[string]*span.Span, parentOf map[string]*span.Span, childrenOf map[string][]*span.Span) {
	bySpanID = make(map[string]*span.Span, len(spans))
	for _, s := range spans {
		bySpanID[s.SpanID] = s
	}
	parentOf = make(map[string]*span.Span, len(spans))
	childrenOf = make(map[string][]*span.Span, len(spans))
	for _, s := range spans {
		if s.ParentSpanID == "" {
			continue
		}
		if p, ok := bySpanID[s.ParentSpanID]; ok {
			parentOf[s.SpanID] = p
			childrenOf[s.ParentSpanID] = append(childrenOf[s.ParentSpanID], s)
		}
	}
	return bySpanID, parentOf, childrenOf
}

// Insert classifies and inserts every span of trc at time t. A span
// that matches more than one outer rule list routing to distinct
// configurations is inserted into every one of them; a span matching
// the same configuration from two outer lists is inserted into it
// exactly once (span.Classify already deduplicates — spec §4.2).
func (t *Trace) Insert(at int64, trc *span.Trace) {
	_, parentOf, childrenOf := index(trc.Spans)
	for _, s := range trc.Spans {
		parent := parentOf[s.SpanID]
		children := childrenOf[s.SpanID]
		for _, configName := range span.Classify(t.config.Rules, s, parent) {
			if p, ok := t.groups[configName]; ok {
				p.Insert(at, s, parent, children)
			}
		}
	}
}

// Sample emits every configuration's every group's every metric.
func (t *Trace) Sample(emit func(metrics.Point)) {
	for name, p := range t.groups {
		p.Sample(string(name), emit)
	}
}

// Cleanup drops every group, across every configuration, not seen
// since at.
func (t *Trace) Cleanup(at int64) {
	for _, p := range t.groups {
		p.Cleanup(at)
	}
}

// GroupCount sums GroupCount across every configuration.
func (t *Trace) GroupCount() int {
	n := 0
	for _, p := range t.groups {
		n += p.GroupCount()
	}
	return n
}
