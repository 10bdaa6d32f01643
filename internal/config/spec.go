// Package config holds the on-disk configuration tree (spec §3): trace
// rules, per-configuration span grouping, and per-metric source/statistics
// settings. Types here are the YAML-decodable "spec" shapes; Build methods
// translate them into the runtime types internal/span and
// internal/processor operate on, validating along the way.
package config

// Config is the root on-disk document: the trace configuration plus the
// orchestrator's timing knobs (spec §6 "Key constants" defaults).
type Config struct {
	Rules        [][]RuleSpec              `yaml:"rules"`
	Configs      map[string]SpanConfigSpec `yaml:"configs"`
	QueryInterval string                   `yaml:"query_interval" validate:"required"`
	MaxHistory    string                   `yaml:"max_history" validate:"required"`
	Delay         string                   `yaml:"delay" validate:"required"`
}

// Default returns the configuration shipped when no config file is present
// yet, mirroring the original's query_interval=30s/max_history=1h/delay=2m
// defaults (spec §6).
func Default() Config {
	return Config{
		QueryInterval: "30s",
		MaxHistory:    "1h",
		Delay:         "2m",
		Configs:       map[string]SpanConfigSpec{},
	}
}

// RuleSpec is one {select, config} pair within an outer rule list.
type RuleSpec struct {
	Select SelectorSpec `yaml:"select"`
	Config string       `yaml:"config" validate:"required"`
}

// SpanKeySpec names a KeyName scoped to the current span or its parent.
type SpanKeySpec struct {
	Scope string `yaml:"scope,omitempty" validate:"omitempty,oneof=current parent"`
	Kind  string `yaml:"kind" validate:"required,oneof=operation_name service_name process_tag span_tag duration"`
	Tag   string `yaml:"tag,omitempty"`
}

// SpanConfigSpec is one named configuration's grouping key and metrics.
type SpanConfigSpec struct {
	Key     []SpanKeySpec              `yaml:"key"`
	Metrics map[string]MetricConfigSpec `yaml:"metrics"`
}

// MetricConfigSpec is one metric's observation source plus the statistics
// fan-out it feeds.
type MetricConfigSpec struct {
	Source MetricSourceSpec `yaml:"source"`
	Stats  StatsConfigSpec  `yaml:"stats"`
}

// WindowConfigSpec configures a ring buffer: bucket width (a duration
// string, e.g. "30s") and bucket count.
type WindowConfigSpec struct {
	BinWidth string `yaml:"bin_width" validate:"required"`
	NumBins  int    `yaml:"num_bins" validate:"required,gt=0"`
}

// MetricSourceSpec is a tagged union over the source variants of spec
// §4.3; exactly one field should be set (enforced in Validate).
type MetricSourceSpec struct {
	Duration     bool              `yaml:"duration,omitempty"`
	SelfDuration bool              `yaml:"self_duration,omitempty"`
	Tag          string            `yaml:"tag,omitempty"`
	TagExcept    *TagExceptSpec    `yaml:"tag_except,omitempty"`
	Rate         *RateSpec         `yaml:"rate,omitempty"`
	Count        *WindowConfigSpec `yaml:"count,omitempty"`
}

// TagExceptSpec configures the TagExcept source (spec §4.3).
type TagExceptSpec struct {
	Tag string `yaml:"tag" validate:"required"`
	Key string `yaml:"key,omitempty"`
}

// RateSpec configures the Rate source.
type RateSpec struct {
	Select SelectorSpec `yaml:"select"`
}

// StatsConfigSpec is the optional fan-out to each statistics sub-processor
// (spec §3 StatsConfig). A nil field means that sub-processor is disabled.
type StatsConfigSpec struct {
	AnomalyScore *AnomalyScoreSpec `yaml:"anomaly_score,omitempty"`
	MeanStddev   *MeanStddevSpec   `yaml:"mean_stddev,omitempty"`
	Summary      *SummarySpec      `yaml:"summary,omitempty"`
	Histogram    *HistogramSpec    `yaml:"histogram,omitempty"`
}

// AnomalyScoreSpec configures the immediate/reference windows and the
// score formula's offset/confidence quantile (spec §4.4.4).
type AnomalyScoreSpec struct {
	Immediate map[string]WindowConfigSpec `yaml:"immediate" validate:"required,min=1"`
	Reference map[string]WindowConfigSpec `yaml:"reference" validate:"required,min=1"`
	Offset    float64                     `yaml:"offset" validate:"gte=0"`
	Quantile  float64                     `yaml:"quantile" validate:"gt=0,lt=1"`
}

// MeanStddevSpec selects the CountSum or Welford algorithm (spec §4.4.1).
type MeanStddevSpec struct {
	Algorithm string `yaml:"algorithm" validate:"required,oneof=count_sum welford"`
}

// SummarySpec configures the t-digest-backed quantile sketch (spec
// §4.4.2).
type SummarySpec struct {
	Compression float64           `yaml:"compression" validate:"gt=0"`
	Quantiles   []float64         `yaml:"quantiles" validate:"required,min=1,dive,gt=0,lt=1"`
	Window      *WindowConfigSpec `yaml:"window,omitempty"`
}

// HistogramSpec configures fixed ascending bucket bounds (spec §4.4.3).
type HistogramSpec struct {
	Bounds []float64 `yaml:"bounds" validate:"required,min=1"`
}
