// Package metrics builds the label sets and points the processor tree
// emits (spec §5 "Metric emission"); batching them into remote-write
// requests is done by internal/metricsink.
package metrics

import (
	"strconv"

	"github.com/AnomalyAI/anomalyd/internal/span"
)

// Labels are the optional, per-sample labels a leaf statistics processor
// attaches on top of the group-key labels every metric carries: a
// quantile (summary), a histogram bucket bound, or an anomaly-score
// window tag. At most these four are ever set by any one processor.
type Labels struct {
	Q         string
	Le        string
	Immediate string
	Reference string
}

// Args is what a leaf statistics processor (mean/stddev, summary,
// histogram, anomaly score) passes up to name and label one sample;
// NewPoint adds the group-key labels and the "trace_" metric name prefix,
// from the group key the span processor hands it.
type Args struct {
	// MetricSuffix, when non-empty, is appended to the metric name as
	// "_<suffix>" (e.g. "count", "mean", "m2").
	MetricSuffix string
	MetricType   string
	Labels       Labels
}

// Point is one fully labelled sample ready for batching into a
// remote-write request.
type Point struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// FormatTagValue renders a typed tag value the way it appears in a
// label: strings pass through, integers are decimal, booleans are
// "true"/"false".
func FormatTagValue(v span.TagValue) string {
	switch v.Kind {
	case span.TagString:
		return v.String
	case span.TagInt64:
		return strconv.FormatInt(v.Int64, 10)
	case span.TagBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// metricName joins the metric's base name, an optional "_<suffix>", and
// the "trace_" prefix every metric the span processor emits carries.
func metricName(base string, args Args) string {
	name := "trace_" + base
	if args.MetricSuffix != "" {
		name += "_" + args.MetricSuffix
	}
	return name
}

// NewPoint assembles a Point from a metric's base name, the leaf
// processor's Args, the group key that produced it, and the config
// that owns it. keys and values must be the same length and come from
// the same span.KeySet.Extract call.
func NewPoint(base string, args Args, configName string, keys span.KeySet, values []span.KeyValue, value float64) Point {
	labels := make(map[string]string, len(keys)+6)
	for i, kv := range values {
		if !kv.Present {
			continue
		}
		labels[keys[i].Label()] = FormatTagValue(kv.Value)
	}
	labels["metric_type"] = args.MetricType
	labels["config"] = configName
	if args.Labels.Q != "" {
		labels["quantile"] = args.Labels.Q
	}
	if args.Labels.Le != "" {
		labels["le"] = args.Labels.Le
	}
	if args.Labels.Immediate != "" {
		labels["immediate"] = args.Labels.Immediate
	}
	if args.Labels.Reference != "" {
		labels["reference"] = args.Labels.Reference
	}
	return Point{Name: metricName(base, args), Labels: labels, Value: value}
}
