package processor

import (
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/numeric"
	"github.com/AnomalyAI/anomalyd/internal/window"
)

// welfordWindow is the per-interval ring buffer: each bucket boundary
// holds a snapshot of the lifetime Welford accumulator taken at that
// moment, so First()/Current() differenced via numeric.WindowStats
// yields the statistics of just the observations within the window.
type welfordWindow = window.Window[numeric.Welford]

// AnomalyScoreState is the persisted form of an AnomalyScore processor.
type AnomalyScoreState struct {
	Welford   numeric.Welford
	Immediate map[string]intervalState
	Reference map[string]intervalState
}

type intervalState struct {
	WindowStart int64
	WindowBins  []numeric.Welford
}

// AnomalyScore computes the overall anomaly score of a metric by
// comparing a short "immediate" window's confidence-bounded mean
// against a longer "reference" window's (spec §4.4.4): one score is
// emitted per (immediate, reference) interval pair.
type AnomalyScore struct {
	config    AnomalyScoreConfig
	welford   numeric.Welford
	immediate map[string]*welfordWindow
	reference map[string]*welfordWindow
}

// NewAnomalyScore builds a fresh processor, every interval's history
// bootstrapped with a zero accumulator (there is no prior data yet).
func NewAnomalyScore(t int64, cfg AnomalyScoreConfig) *AnomalyScore {
	zero := func(int64) numeric.Welford { return numeric.Welford{} }
	a := &AnomalyScore{
		config:    cfg,
		immediate: make(map[string]*welfordWindow, len(cfg.Immediate)),
		reference: make(map[string]*welfordWindow, len(cfg.Reference)),
	}
	for name, wc := range cfg.Immediate {
		a.immediate[name] = window.New(t, wc.BinWidth, wc.NumBins, zero)
	}
	for name, wc := range cfg.Reference {
		a.reference[name] = window.New(t, wc.BinWidth, wc.NumBins, zero)
	}
	return a
}

// Update carries compatible interval windows forward; an interval that
// is new or whose shape changed is bootstrapped from the current
// lifetime Welford state, so a fresh window reads as "no anomaly yet"
// rather than a spurious all-zero history once real data arrives.
func (a *AnomalyScore) Update(t int64, cfg AnomalyScoreConfig) *AnomalyScore {
	seed := func(int64) numeric.Welford { return a.welford }
	out := &AnomalyScore{
		config:    cfg,
		welford:   a.welford,
		immediate: make(map[string]*welfordWindow, len(cfg.Immediate)),
		reference: make(map[string]*welfordWindow, len(cfg.Reference)),
	}
	for name, wc := range cfg.Immediate {
		if w, ok := a.immediate[name]; ok && w.CompatibleWith(wc.BinWidth, wc.NumBins) {
			out.immediate[name] = w
		} else {
			out.immediate[name] = window.New(t, wc.BinWidth, wc.NumBins, seed)
		}
	}
	for name, wc := range cfg.Reference {
		if w, ok := a.reference[name]; ok && w.CompatibleWith(wc.BinWidth, wc.NumBins) {
			out.reference[name] = w
		} else {
			out.reference[name] = window.New(t, wc.BinWidth, wc.NumBins, seed)
		}
	}
	return out
}

// LoadAnomalyScore restores persisted interval windows, falling back to
// Update's bootstrap-from-current-welford behaviour for any interval
// whose state is missing or incompatible.
func LoadAnomalyScore(t int64, state *AnomalyScoreState, cfg AnomalyScoreConfig) *AnomalyScore {
	a := &AnomalyScore{config: cfg, immediate: map[string]*welfordWindow{}, reference: map[string]*welfordWindow{}}
	if state != nil {
		a.welford = state.Welford
		for name, is := range state.Immediate {
			if wc, ok := cfg.Immediate[name]; ok && len(is.WindowBins) == wc.NumBins {
				a.immediate[name] = window.Restore(is.WindowStart, wc.BinWidth, is.WindowBins)
			}
		}
		for name, is := range state.Reference {
			if wc, ok := cfg.Reference[name]; ok && len(is.WindowBins) == wc.NumBins {
				a.reference[name] = window.Restore(is.WindowStart, wc.BinWidth, is.WindowBins)
			}
		}
	}
	return a.Update(t, cfg)
}

// Save snapshots the processor for persistence.
func (a *AnomalyScore) Save() *AnomalyScoreState {
	out := &AnomalyScoreState{
		Welford:   a.welford,
		Immediate: make(map[string]intervalState, len(a.immediate)),
		Reference: make(map[string]intervalState, len(a.reference)),
	}
	for name, w := range a.immediate {
		out.Immediate[name] = intervalState{WindowStart: w.Start(), WindowBins: w.Bins()}
	}
	for name, w := range a.reference {
		out.Reference[name] = intervalState{WindowStart: w.Start(), WindowBins: w.Bins()}
	}
	return out
}

// Insert folds value into the lifetime accumulator, then advances every
// interval window to t. Each newly created bucket boundary is seeded
// with the Welford state as of that bucket's end: the post-insert state
// if t has already reached it (a multi-bucket catch-up), else the
// pre-insert state (spec §4.4.4).
func (a *AnomalyScore) Insert(t int64, value float64) {
	prev := a.welford
	a.welford.Insert(value)
	post := a.welford
	valueAt := func(end int64) numeric.Welford {
		if t >= end {
			return post
		}
		return prev
	}
	for _, w := range a.immediate {
		binWidth := w.BinWidth()
		w.AdvanceInit(t, func(s int64) numeric.Welford { return valueAt(s + binWidth) })
	}
	for _, w := range a.reference {
		binWidth := w.BinWidth()
		w.AdvanceInit(t, func(s int64) numeric.Welford { return valueAt(s + binWidth) })
	}
}

// Sample emits per-interval count/mean/ci, then one score per
// (immediate, reference) pair: the immediate window's lower confidence
// bound (floored at zero) divided by the reference window's upper
// confidence bound plus a configured offset.
func (a *AnomalyScore) Sample(metric func(metrics.Args, float64)) {
	q := a.config.Quantile

	type bound struct {
		name  string
		value float64
	}
	immediateBounds := make([]bound, 0, len(a.immediate))
	for name, w := range a.immediate {
		ws := numeric.WindowStats(w.First(), w.Current())
		metric(metrics.Args{MetricSuffix: "count", MetricType: "anomaly_score", Labels: metrics.Labels{Immediate: name}}, ws.Count.Float64())
		metric(metrics.Args{MetricSuffix: "mean", MetricType: "anomaly_score", Labels: metrics.Labels{Immediate: name}}, ws.MeanFloat())
		metric(metrics.Args{MetricSuffix: "ci", MetricType: "anomaly_score", Labels: metrics.Labels{Immediate: name}}, ws.ConfidenceInterval(q))
		lower := ws.LowerBound(q)
		if lower < 0 {
			lower = 0
		}
		immediateBounds = append(immediateBounds, bound{name: name, value: lower})
	}

	referenceBounds := make([]bound, 0, len(a.reference))
	for name, w := range a.reference {
		ws := numeric.WindowStats(w.First(), w.Current())
		metric(metrics.Args{MetricSuffix: "count", MetricType: "anomaly_score", Labels: metrics.Labels{Reference: name}}, ws.Count.Float64())
		metric(metrics.Args{MetricSuffix: "mean", MetricType: "anomaly_score", Labels: metrics.Labels{Reference: name}}, ws.MeanFloat())
		metric(metrics.Args{MetricSuffix: "ci", MetricType: "anomaly_score", Labels: metrics.Labels{Reference: name}}, ws.ConfidenceInterval(q))
		referenceBounds = append(referenceBounds, bound{name: name, value: ws.UpperBound(q) + a.config.Offset})
	}

	for _, im := range immediateBounds {
		for _, ref := range referenceBounds {
			score := im.value / ref.value
			metric(metrics.Args{
				MetricSuffix: "score",
				MetricType:   "anomaly_score",
				Labels:       metrics.Labels{Immediate: im.name, Reference: ref.name},
			}, score)
		}
	}
}
