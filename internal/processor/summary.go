package processor

import (
	"fmt"

	"github.com/AnomalyAI/anomalyd/internal/accum"
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/window"
)

// digestBins is the persisted shape of a t-digest window bucket: its
// compression, count, sum and centroids, all stored as they are and
// handed back to accum.RestoreDigest on load.
type digestBins struct {
	Compression float64
	Count       float64
	Sum         float64
	Centroids   []accum.Centroid
}

// SummaryState is the persisted form of a Summary processor.
type SummaryState struct {
	WindowStart int64
	WindowBins  []digestBins
	Count       int64
	Sum         float64
}

// Summary tracks a rolling quantile sketch over a metric's recent
// values (spec §4.4.2): each bucket holds its own t-digest, and
// sampling merges every bucket in the window before estimating
// quantiles, so old observations age out as the window rotates.
type Summary struct {
	config SummaryConfig
	window *window.Window[*accum.Digest]
	count  int64
	sum    float64
}

// NewSummary builds a fresh Summary, anchoring its window at t.
func NewSummary(t int64, cfg SummaryConfig) *Summary {
	return &Summary{
		config: cfg,
		window: window.New(t, cfg.Window.BinWidth, cfg.Window.NumBins, func(int64) *accum.Digest {
			return accum.NewDigest(cfg.Compression)
		}),
	}
}

// Update carries the window and lifetime counters forward if the
// window shape is unchanged, else starts fresh.
func (sm *Summary) Update(t int64, cfg SummaryConfig) *Summary {
	if sm.window.CompatibleWith(cfg.Window.BinWidth, cfg.Window.NumBins) {
		return &Summary{config: cfg, window: sm.window, count: sm.count, sum: sm.sum}
	}
	return NewSummary(t, cfg)
}

// LoadSummary restores persisted digests bucket-for-bucket, falling
// back to a fresh Summary when the window shape no longer matches.
func LoadSummary(t int64, state *SummaryState, cfg SummaryConfig) *Summary {
	if state != nil && len(state.WindowBins) == cfg.Window.NumBins {
		bins := make([]*accum.Digest, len(state.WindowBins))
		for i, b := range state.WindowBins {
			bins[i] = accum.RestoreDigest(b.Compression, b.Count, b.Sum, b.Centroids)
		}
		w := window.Restore(state.WindowStart, cfg.Window.BinWidth, bins)
		if w.CompatibleWith(cfg.Window.BinWidth, cfg.Window.NumBins) {
			return &Summary{config: cfg, window: w, count: state.Count, sum: state.Sum}
		}
	}
	return NewSummary(t, cfg)
}

// Save snapshots the summary for persistence.
func (sm *Summary) Save() *SummaryState {
	bins := sm.window.Bins()
	out := make([]digestBins, len(bins))
	for i, d := range bins {
		out[i] = digestBins{Compression: d.Compression, Count: d.Count(), Sum: d.Sum(), Centroids: d.Centroids()}
	}
	return &SummaryState{WindowStart: sm.window.Start(), WindowBins: out, Count: sm.count, Sum: sm.sum}
}

// Insert folds value into the lifetime counters and the current
// bucket's digest, first advancing the window to t.
func (sm *Summary) Insert(t int64, value float64) {
	sm.count++
	sm.sum += value
	sm.window.AdvanceInit(t, func(int64) *accum.Digest { return accum.NewDigest(sm.config.Compression) })
	sm.window.Current().Insert(value)
}

// Sample emits count, sum, and one sample per configured quantile,
// estimated from the merge of every bucket currently in the window.
func (sm *Summary) Sample(metric func(metrics.Args, float64)) {
	metric(metrics.Args{MetricSuffix: "count", MetricType: "summary"}, float64(sm.count))
	metric(metrics.Args{MetricSuffix: "sum", MetricType: "summary"}, sm.sum)

	merged := accum.NewDigest(sm.config.Compression)
	for _, d := range sm.window.Bins() {
		merged = merged.Merge(d)
	}
	for _, q := range sm.config.Quantiles {
		metric(metrics.Args{
			MetricType: "summary",
			Labels:     metrics.Labels{Q: fmt.Sprintf("%.2f", q)},
		}, merged.Quantile(q))
	}
}
