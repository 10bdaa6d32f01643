package processor

import (
	"strconv"

	"github.com/AnomalyAI/anomalyd/internal/metrics"
)

// HistogramState is the persisted form of a Histogram processor.
type HistogramState struct {
	Bounds []float64
	Bins   []float64
	Count  int64
	Sum    float64
}

// Histogram accumulates a cumulative fixed-bucket histogram (spec
// §4.4.3): bins[i] counts every observation <= bounds[i], mirroring a
// Prometheus-style "le" histogram rather than a disjoint one.
type Histogram struct {
	config HistogramConfig
	bins   []float64
	count  int64
	sum    float64
}

// NewHistogram builds a fresh, all-zero histogram for config.
func NewHistogram(cfg HistogramConfig) *Histogram {
	return &Histogram{config: cfg, bins: make([]float64, len(cfg.Bounds))}
}

// Update carries bin counts forward if the bounds are unchanged
// (bin-for-bin identical), else starts fresh — a changed bound set
// invalidates the existing bins' meaning.
func (h *Histogram) Update(cfg HistogramConfig) *Histogram {
	if !boundsEqual(h.config.Bounds, cfg.Bounds) {
		return NewHistogram(cfg)
	}
	return &Histogram{config: cfg, bins: h.bins, count: h.count, sum: h.sum}
}

func boundsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LoadHistogram restores persisted bins under the configured bounds,
// resizing/zeroing if the bound count changed.
func LoadHistogram(state *HistogramState, cfg HistogramConfig) *Histogram {
	if state != nil && len(state.Bins) == len(cfg.Bounds) {
		bins := make([]float64, len(state.Bins))
		copy(bins, state.Bins)
		return &Histogram{config: cfg, bins: bins, count: state.Count, sum: state.Sum}
	}
	return NewHistogram(cfg)
}

// Save snapshots the histogram for persistence.
func (h *Histogram) Save() *HistogramState {
	bins := make([]float64, len(h.bins))
	copy(bins, h.bins)
	return &HistogramState{Bounds: h.config.Bounds, Bins: bins, Count: h.count, Sum: h.sum}
}

// Insert increments every bucket whose bound is >= value. Bounds are
// ascending, so once the smallest satisfying bound is found every
// larger one also qualifies; the loop still checks each explicitly
// since it only ever runs over the small, fixed configured bound list.
func (h *Histogram) Insert(value float64) {
	h.count++
	h.sum += value
	for i, bound := range h.config.Bounds {
		if value <= bound {
			h.bins[i]++
		}
	}
}

// Sample emits count, sum, and one "buckets" sample per bound, labelled
// with its bound as "le".
func (h *Histogram) Sample(metric func(metrics.Args, float64)) {
	metric(metrics.Args{MetricSuffix: "count", MetricType: "histogram"}, float64(h.count))
	metric(metrics.Args{MetricSuffix: "sum", MetricType: "histogram"}, h.sum)
	for i, bound := range h.config.Bounds {
		metric(metrics.Args{
			MetricSuffix: "buckets",
			MetricType:   "histogram",
			Labels:       metrics.Labels{Le: strconv.FormatFloat(bound, 'f', -1, 64)},
		}, h.bins[i])
	}
}
