package processor

import (
	"github.com/AnomalyAI/anomalyd/internal/accum"
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/span"
	"github.com/AnomalyAI/anomalyd/internal/window"
)

// SourceState is the persisted state of a Source processor. Only the
// Count variant carries state across restarts; every other variant is
// stateless and recomputed fresh from the current span on each insert.
type SourceState struct {
	Kind        SourceKind
	WindowStart int64
	WindowBins  []accum.Count
	Count       int64
}

// Source is the runtime form of one metric's observation source (spec
// §4.3). Insert feeds zero or more numeric observations to a callback;
// Count is the only variant with its own directly-sampled metric.
type Source struct {
	config SourceConfig
	window *window.Window[accum.Count]
	count  int64
}

// NewSource builds a fresh Source for config, anchoring any window at t.
func NewSource(t int64, cfg SourceConfig) *Source {
	s := &Source{config: cfg}
	if cfg.Kind == SourceCount {
		s.window = window.New(t, cfg.CountWindow.BinWidth, cfg.CountWindow.NumBins, func(int64) accum.Count { return accum.Count{} })
	}
	return s
}

// Update carries state forward across a config change if the source
// kind (and, for Count, the window shape) is unchanged; otherwise it
// starts fresh at t.
func (s *Source) Update(t int64, cfg SourceConfig) *Source {
	if cfg.Kind != s.config.Kind {
		return NewSource(t, cfg)
	}
	switch cfg.Kind {
	case SourceTag:
		if cfg.Tag != s.config.Tag {
			return NewSource(t, cfg)
		}
	case SourceTagExcept:
		if cfg.TagExceptTag != s.config.TagExceptTag || cfg.TagExceptKey != s.config.TagExceptKey {
			return NewSource(t, cfg)
		}
	case SourceCount:
		if !s.window.CompatibleWith(cfg.CountWindow.BinWidth, cfg.CountWindow.NumBins) {
			return NewSource(t, cfg)
		}
		return &Source{config: cfg, window: s.window, count: s.count}
	}
	return &Source{config: cfg}
}

// LoadSource restores a Source from persisted state, falling back to a
// fresh one if the state is absent or its window shape no longer
// matches config.
func LoadSource(t int64, state *SourceState, cfg SourceConfig) *Source {
	if state != nil && cfg.Kind == SourceCount && state.Kind == SourceCount && len(state.WindowBins) == cfg.CountWindow.NumBins {
		w := window.Restore(state.WindowStart, cfg.CountWindow.BinWidth, state.WindowBins)
		if w.CompatibleWith(cfg.CountWindow.BinWidth, cfg.CountWindow.NumBins) {
			return &Source{config: cfg, window: w, count: state.Count}
		}
	}
	return NewSource(t, cfg)
}

// Save snapshots the source's persistable state, or nil for the
// stateless variants.
func (s *Source) Save() *SourceState {
	if s.config.Kind != SourceCount {
		return nil
	}
	return &SourceState{
		Kind:        SourceCount,
		WindowStart: s.window.Start(),
		WindowBins:  s.window.Bins(),
		Count:       s.count,
	}
}

func mergeCounts(bins []accum.Count) accum.Count {
	var total accum.Count
	for _, b := range bins {
		total = total.Merge(b)
	}
	return total
}

// windowMinutes returns the window's total width (bin width * bin count)
// in minutes, the divisor the Count source rates against (spec §4.3).
func windowMinutes(cfg WindowConfig) float64 {
	totalMicros := cfg.BinWidth * int64(cfg.NumBins)
	return float64(totalMicros) / 6e7
}

func findTagInt64(tags []span.Tag, key string) (int64, bool) {
	for _, t := range tags {
		if t.Key == key && t.Value.Kind == span.TagInt64 {
			return t.Value.Int64, true
		}
	}
	return 0, false
}

func findTagValue(tags []span.Tag, key string) (span.TagValue, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return span.TagValue{}, false
}

// Insert feeds the observation(s) this source extracts from (s, parent,
// children) at time t into observe. Count additionally emits any
// just-completed bucket's rate (count.Merge across all bins, divided by
// the window's total width in minutes) before folding the span into the
// new current bucket.
func (src *Source) Insert(t int64, s *span.Span, parent *span.Span, children []*span.Span, observe func(float64)) {
	switch src.config.Kind {
	case SourceDuration:
		observe(float64(s.Duration))
	case SourceSelfDuration:
		observe(float64(span.SelfDuration(s, children)))
	case SourceTag:
		if n, ok := findTagInt64(s.Tags, src.config.Tag); ok {
			observe(float64(n))
		}
	case SourceTagExcept:
		n, ok := findTagInt64(s.Tags, src.config.TagExceptTag)
		if !ok {
			return
		}
		id, hasID := findTagValue(s.Tags, src.config.TagExceptKey)
		var cn int64
		for _, child := range children {
			if hasID {
				childID, ok := findTagValue(child.Tags, src.config.TagExceptKey)
				if ok && childID != id {
					continue
				}
			}
			if v, ok := findTagInt64(child.Tags, src.config.TagExceptTag); ok {
				cn += v
			}
		}
		observe(float64(n - cn))
	case SourceRate:
		if src.config.RateSelect.Match(s, parent) {
			observe(1.0)
		} else {
			observe(0.0)
		}
	case SourceCount:
		minutes := windowMinutes(src.config.CountWindow)
		rates := window.AdvanceWith(src.window, t, func(int64) accum.Count { return accum.Count{} }, func(w *window.Window[accum.Count]) float64 {
			return float64(mergeCounts(w.Bins()).N) / minutes
		})
		for _, rate := range rates {
			observe(rate)
		}
		src.count++
		src.window.CurrentPtr().Insert()
	}
}

// Sample emits the Count variant's own lifetime-counter metric; every
// other variant's value reaches metrics only through the statistics
// sub-processors it feeds.
func (src *Source) Sample(metric func(metrics.Args, float64)) {
	if src.config.Kind == SourceCount {
		metric(metrics.Args{MetricSuffix: "total", MetricType: "source_count"}, float64(src.count))
	}
}
