package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpanConfig() SpanConfigSpec {
	return SpanConfigSpec{
		Key: []SpanKeySpec{{Kind: "operation_name"}, {Kind: "service_name"}},
		Metrics: map[string]MetricConfigSpec{
			"duration": {
				Source: MetricSourceSpec{Duration: true},
				Stats: StatsConfigSpec{
					MeanStddev: &MeanStddevSpec{Algorithm: "welford"},
				},
			},
		},
	}
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	cfg := Default()
	cfg.Configs["default"] = validSpanConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingSourceVariant(t *testing.T) {
	cfg := Default()
	sc := validSpanConfig()
	sc.Metrics["duration"] = MetricConfigSpec{Source: MetricSourceSpec{}}
	cfg.Configs["default"] = sc
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsMultipleSourceVariants(t *testing.T) {
	cfg := Default()
	sc := validSpanConfig()
	sc.Metrics["duration"] = MetricConfigSpec{Source: MetricSourceSpec{Duration: true, SelfDuration: true}}
	cfg.Configs["default"] = sc
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonAscendingHistogramBounds(t *testing.T) {
	cfg := Default()
	sc := validSpanConfig()
	mc := sc.Metrics["duration"]
	mc.Stats.Histogram = &HistogramSpec{Bounds: []float64{10, 5, 20}}
	sc.Metrics["duration"] = mc
	cfg.Configs["default"] = sc
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsAscendingHistogramBounds(t *testing.T) {
	cfg := Default()
	sc := validSpanConfig()
	mc := sc.Metrics["duration"]
	mc.Stats.Histogram = &HistogramSpec{Bounds: []float64{5, 10, 20}}
	sc.Metrics["duration"] = mc
	cfg.Configs["default"] = sc
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsRuleReferencingUndeclaredConfig(t *testing.T) {
	cfg := Default()
	cfg.Configs["default"] = validSpanConfig()
	cfg.Rules = [][]RuleSpec{{{Select: SelectorSpec{All: []SelectorSpec{}}, Config: "missing"}}}
	assert.Error(t, cfg.Validate())
}

func TestSelectorBuildRequiresExactlyOneVariant(t *testing.T) {
	_, err := SelectorSpec{}.Build()
	assert.Error(t, err)

	_, err = SelectorSpec{
		Has: &SpanKeySpec{Kind: "operation_name"},
		Not: &SelectorSpec{All: []SelectorSpec{}},
	}.Build()
	assert.Error(t, err)
}

func TestSelectorBuildNestedCombinators(t *testing.T) {
	sel, err := SelectorSpec{
		All: []SelectorSpec{
			{Has: &SpanKeySpec{Kind: "operation_name"}},
			{Not: &SelectorSpec{Has: &SpanKeySpec{Kind: "span_tag", Tag: "error"}}},
		},
	}.Build()
	require.NoError(t, err)
	require.NotNil(t, sel)
}

func TestSelectorBuildRejectsInvalidRegex(t *testing.T) {
	_, err := SelectorSpec{
		Match: &RegexSpec{Key: SpanKeySpec{Kind: "span_tag", Tag: "x"}, Pattern: "("},
	}.Build()
	assert.Error(t, err)
}

func TestSpanKeySpecDefaultsToCurrentScope(t *testing.T) {
	key, err := SpanKeySpec{Kind: "service_name"}.Build()
	require.NoError(t, err)
	_ = key // scope defaults silently tested via Extract equality in internal/span
}
