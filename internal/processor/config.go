// Package processor implements the hierarchical trace-to-metric processor
// tree (spec §4): trace -> span/configuration -> metric -> statistics. This
// file translates the on-disk internal/config spec types into the runtime
// configuration the tree's Build/New/Update methods consume, resolving
// duration strings and compiling selectors once up front.
package processor

import (
	"fmt"
	"time"

	"github.com/AnomalyAI/anomalyd/internal/config"
	"github.com/AnomalyAI/anomalyd/internal/span"
)

// WindowConfig is a resolved ring-buffer shape: bucket width in
// microseconds (the same unit as span.Span's timestamps) and bucket
// count.
type WindowConfig struct {
	BinWidth int64
	NumBins  int
}

func buildWindowConfig(spec config.WindowConfigSpec) (WindowConfig, error) {
	d, err := time.ParseDuration(spec.BinWidth)
	if err != nil {
		return WindowConfig{}, fmt.Errorf("processor: bin_width %q: %w", spec.BinWidth, err)
	}
	return WindowConfig{BinWidth: d.Microseconds(), NumBins: spec.NumBins}, nil
}

// SourceKind discriminates MetricSource's variants (spec §4.3).
type SourceKind int

const (
	SourceDuration SourceKind = iota
	SourceSelfDuration
	SourceTag
	SourceTagExcept
	SourceRate
	SourceCount
)

// SourceConfig is the resolved configuration of one metric's observation
// source.
type SourceConfig struct {
	Kind         SourceKind
	Tag          string
	TagExceptTag string
	TagExceptKey string
	RateSelect   span.Selector
	CountWindow  WindowConfig
}

// BuildSourceConfig resolves a MetricSourceSpec, which Validate has
// already confirmed sets exactly one variant.
func BuildSourceConfig(spec config.MetricSourceSpec) (SourceConfig, error) {
	switch {
	case spec.Duration:
		return SourceConfig{Kind: SourceDuration}, nil
	case spec.SelfDuration:
		return SourceConfig{Kind: SourceSelfDuration}, nil
	case spec.Tag != "":
		return SourceConfig{Kind: SourceTag, Tag: spec.Tag}, nil
	case spec.TagExcept != nil:
		return SourceConfig{Kind: SourceTagExcept, TagExceptTag: spec.TagExcept.Tag, TagExceptKey: spec.TagExcept.Key}, nil
	case spec.Rate != nil:
		sel, err := spec.Rate.Select.Build()
		if err != nil {
			return SourceConfig{}, fmt.Errorf("processor: rate source: %w", err)
		}
		return SourceConfig{Kind: SourceRate, RateSelect: sel}, nil
	case spec.Count != nil:
		wc, err := buildWindowConfig(*spec.Count)
		if err != nil {
			return SourceConfig{}, err
		}
		return SourceConfig{Kind: SourceCount, CountWindow: wc}, nil
	default:
		return SourceConfig{}, fmt.Errorf("processor: no source variant set")
	}
}

// MeanStddevAlgorithm discriminates the CountSum/Welford accumulators
// (spec §4.4.1).
type MeanStddevAlgorithm int

const (
	AlgorithmCountSum MeanStddevAlgorithm = iota
	AlgorithmWelford
)

// MeanStddevConfig is the resolved mean/stddev sub-processor
// configuration.
type MeanStddevConfig struct {
	Algorithm MeanStddevAlgorithm
}

func buildMeanStddevConfig(spec config.MeanStddevSpec) MeanStddevConfig {
	if spec.Algorithm == "count_sum" {
		return MeanStddevConfig{Algorithm: AlgorithmCountSum}
	}
	return MeanStddevConfig{Algorithm: AlgorithmWelford}
}

// SummaryConfig is the resolved t-digest summary sub-processor
// configuration.
type SummaryConfig struct {
	Compression float64
	Quantiles   []float64
	Window      WindowConfig
}

func buildSummaryConfig(spec config.SummarySpec) (SummaryConfig, error) {
	// The summary processor rolls its digest over a window so quantiles
	// reflect recent behaviour rather than the metric's entire lifetime
	// (spec §4.4.2); absent an explicit window, default to four 15-minute
	// buckets.
	window := WindowConfig{BinWidth: int64(15 * time.Minute / time.Microsecond), NumBins: 4}
	if spec.Window != nil {
		built, err := buildWindowConfig(*spec.Window)
		if err != nil {
			return SummaryConfig{}, err
		}
		window = built
	}
	return SummaryConfig{Compression: spec.Compression, Quantiles: spec.Quantiles, Window: window}, nil
}

// HistogramConfig is the resolved fixed-bucket histogram sub-processor
// configuration.
type HistogramConfig struct {
	Bounds []float64
}

func buildHistogramConfig(spec config.HistogramSpec) HistogramConfig {
	return HistogramConfig{Bounds: spec.Bounds}
}

// AnomalyScoreConfig is the resolved immediate/reference window set and
// score formula parameters (spec §4.4.4).
type AnomalyScoreConfig struct {
	Immediate map[string]WindowConfig
	Reference map[string]WindowConfig
	Offset    float64
	Quantile  float64
}

func buildAnomalyScoreConfig(spec config.AnomalyScoreSpec) (AnomalyScoreConfig, error) {
	out := AnomalyScoreConfig{
		Immediate: make(map[string]WindowConfig, len(spec.Immediate)),
		Reference: make(map[string]WindowConfig, len(spec.Reference)),
		Offset:    spec.Offset,
		Quantile:  spec.Quantile,
	}
	for name, wc := range spec.Immediate {
		built, err := buildWindowConfig(wc)
		if err != nil {
			return AnomalyScoreConfig{}, fmt.Errorf("processor: anomaly_score.immediate.%s: %w", name, err)
		}
		out.Immediate[name] = built
	}
	for name, wc := range spec.Reference {
		built, err := buildWindowConfig(wc)
		if err != nil {
			return AnomalyScoreConfig{}, fmt.Errorf("processor: anomaly_score.reference.%s: %w", name, err)
		}
		out.Reference[name] = built
	}
	return out, nil
}

// StatsConfig is the resolved, independently-optional fan-out to each
// statistics sub-processor (spec §3 StatsConfig).
type StatsConfig struct {
	AnomalyScore *AnomalyScoreConfig
	MeanStddev   *MeanStddevConfig
	Summary      *SummaryConfig
	Histogram    *HistogramConfig
}

func buildStatsConfig(spec config.StatsConfigSpec) (StatsConfig, error) {
	var out StatsConfig
	if spec.AnomalyScore != nil {
		asc, err := buildAnomalyScoreConfig(*spec.AnomalyScore)
		if err != nil {
			return StatsConfig{}, err
		}
		out.AnomalyScore = &asc
	}
	if spec.MeanStddev != nil {
		msc := buildMeanStddevConfig(*spec.MeanStddev)
		out.MeanStddev = &msc
	}
	if spec.Summary != nil {
		sc, err := buildSummaryConfig(*spec.Summary)
		if err != nil {
			return StatsConfig{}, err
		}
		out.Summary = &sc
	}
	if spec.Histogram != nil {
		hc := buildHistogramConfig(*spec.Histogram)
		out.Histogram = &hc
	}
	return out, nil
}

// MetricConfig is one metric's resolved source plus statistics fan-out.
type MetricConfig struct {
	Source SourceConfig
	Stats  StatsConfig
}

func buildMetricConfig(spec config.MetricConfigSpec) (MetricConfig, error) {
	source, err := BuildSourceConfig(spec.Source)
	if err != nil {
		return MetricConfig{}, err
	}
	stats, err := buildStatsConfig(spec.Stats)
	if err != nil {
		return MetricConfig{}, err
	}
	return MetricConfig{Source: source, Stats: stats}, nil
}

// SpanConfig is one named configuration's resolved grouping key and
// metrics.
type SpanConfig struct {
	Key     span.KeySet
	Metrics map[string]MetricConfig
}

func buildSpanConfig(spec config.SpanConfigSpec) (SpanConfig, error) {
	key := make(span.KeySet, len(spec.Key))
	for i, ks := range spec.Key {
		built, err := ks.Build()
		if err != nil {
			return SpanConfig{}, err
		}
		key[i] = built
	}
	metrics := make(map[string]MetricConfig, len(spec.Metrics))
	for name, mc := range spec.Metrics {
		built, err := buildMetricConfig(mc)
		if err != nil {
			return SpanConfig{}, fmt.Errorf("processor: metrics.%s: %w", name, err)
		}
		metrics[name] = built
	}
	return SpanConfig{Key: key, Metrics: metrics}, nil
}

// TraceConfig is the resolved top-level configuration: the rule tree
// plus every named span configuration it can route into.
type TraceConfig struct {
	Rules   []span.RuleList
	Configs map[span.ConfigName]SpanConfig
}

// BuildTraceConfig resolves an on-disk config.Config, which Validate has
// already confirmed is internally consistent (rules reference declared
// configs, selectors compile).
func BuildTraceConfig(spec config.Config) (TraceConfig, error) {
	rules := make([]span.RuleList, len(spec.Rules))
	for i, list := range spec.Rules {
		rl := make(span.RuleList, len(list))
		for j, r := range list {
			sel, err := r.Select.Build()
			if err != nil {
				return TraceConfig{}, err
			}
			rl[j] = span.Rule{Select: sel, Config: span.ConfigName(r.Config)}
		}
		rules[i] = rl
	}
	configs := make(map[span.ConfigName]SpanConfig, len(spec.Configs))
	for name, sc := range spec.Configs {
		built, err := buildSpanConfig(sc)
		if err != nil {
			return TraceConfig{}, fmt.Errorf("processor: configs.%s: %w", name, err)
		}
		configs[span.ConfigName(name)] = built
	}
	return TraceConfig{Rules: rules, Configs: configs}, nil
}
