package webapi

import "github.com/AnomalyAI/anomalyd/internal/config"

// MetricSchema describes one metric series family a span configuration's
// metric can emit: the base name plus every statistic suffix its
// enabled stats produce (spec §5 "Metric emission" names these
// "<base>_<suffix>" pairs).
type MetricSchema struct {
	Metric   string   `json:"metric"`
	Suffixes []string `json:"suffixes"`
}

// ConfigSchema is the schema for one named span configuration.
type ConfigSchema struct {
	Config  string         `json:"config"`
	Metrics []MetricSchema `json:"metrics"`
}

// Schema is the full set of schemas the current config would produce.
type Schema struct {
	Configs []ConfigSchema `json:"configs"`
}

func buildSchema(cfg config.Config) Schema {
	out := Schema{}
	for name, sc := range cfg.Configs {
		cs := ConfigSchema{Config: name}
		for metricName, mc := range sc.Metrics {
			cs.Metrics = append(cs.Metrics, MetricSchema{
				Metric:   metricName,
				Suffixes: statSuffixes(mc.Stats),
			})
		}
		out.Configs = append(out.Configs, cs)
	}
	return out
}

func statSuffixes(stats config.StatsConfigSpec) []string {
	var suffixes []string
	if stats.AnomalyScore != nil {
		// Immediate and reference windows differ by label, not by suffix.
		suffixes = append(suffixes, "count", "mean", "ci", "score")
	}
	if stats.MeanStddev != nil {
		suffixes = append(suffixes, "count", "sum", "mean", "m2")
	}
	if stats.Summary != nil {
		// Quantile estimates carry no suffix: they use the bare base name
		// with a quantile label.
		suffixes = append(suffixes, "count", "sum")
	}
	if stats.Histogram != nil {
		suffixes = append(suffixes, "count", "sum", "buckets")
	}
	return suffixes
}
