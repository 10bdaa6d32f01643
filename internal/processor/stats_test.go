package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AnomalyAI/anomalyd/internal/metrics"
)

func TestStatsOnlyEnabledSubProcessorsEmit(t *testing.T) {
	cfg := StatsConfig{
		MeanStddev: &MeanStddevConfig{Algorithm: AlgorithmCountSum},
	}
	s := NewStats(0, cfg)
	s.Insert(0, 5)
	s.Insert(0, 7)

	var types []string
	s.Sample(func(args metrics.Args, v float64) { types = append(types, args.MetricType) })

	for _, mt := range types {
		assert.Equal(t, "count_sum", mt)
	}
	assert.NotEmpty(t, types)
}

func TestStatsUpdateEnablesNewSubProcessor(t *testing.T) {
	cfg := StatsConfig{MeanStddev: &MeanStddevConfig{Algorithm: AlgorithmCountSum}}
	s := NewStats(0, cfg)
	s.Insert(0, 5)

	newCfg := cfg
	hc := HistogramConfig{Bounds: []float64{10}}
	newCfg.Histogram = &hc
	updated := s.Update(0, newCfg)

	var sawHistogram bool
	updated.Sample(func(args metrics.Args, v float64) {
		if args.MetricType == "histogram" {
			sawHistogram = true
		}
	})
	assert.True(t, sawHistogram)
}

func TestStatsUpdateDisablesRemovedSubProcessor(t *testing.T) {
	cfg := StatsConfig{
		MeanStddev: &MeanStddevConfig{Algorithm: AlgorithmCountSum},
		Histogram:  &HistogramConfig{Bounds: []float64{10}},
	}
	s := NewStats(0, cfg)

	newCfg := cfg
	newCfg.Histogram = nil
	updated := s.Update(0, newCfg)

	var sawHistogram bool
	updated.Sample(func(args metrics.Args, v float64) {
		if args.MetricType == "histogram" {
			sawHistogram = true
		}
	})
	assert.False(t, sawHistogram)
}

func TestStatsSaveLoadRoundTrips(t *testing.T) {
	cfg := StatsConfig{MeanStddev: &MeanStddevConfig{Algorithm: AlgorithmWelford}}
	s := NewStats(0, cfg)
	s.Insert(0, 3)
	s.Insert(0, 9)

	saved := s.Save()
	restored := LoadStats(0, saved, cfg)

	var before, after []float64
	s.Sample(func(args metrics.Args, v float64) { before = append(before, v) })
	restored.Sample(func(args metrics.Args, v float64) { after = append(after, v) })
	assert.Equal(t, before, after)
}
