package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnomalyAI/anomalyd/internal/metrics"
)

func newTestAnomalyScoreConfig() AnomalyScoreConfig {
	wc := WindowConfig{BinWidth: minute, NumBins: 2}
	return AnomalyScoreConfig{
		Immediate: map[string]WindowConfig{"i": wc},
		Reference: map[string]WindowConfig{"r": wc},
		Offset:    1,
		Quantile:  0.5,
	}
}

func TestAnomalyScoreNoDataYieldsZeroScore(t *testing.T) {
	a := NewAnomalyScore(0, newTestAnomalyScoreConfig())

	var score float64
	a.Sample(func(args metrics.Args, v float64) {
		if args.MetricSuffix == "score" {
			score = v
		}
	})
	assert.Equal(t, float64(0), score)
}

func TestAnomalyScoreWithinOneBucketDoesNotAdvanceWindow(t *testing.T) {
	a := NewAnomalyScore(0, newTestAnomalyScoreConfig())
	a.Insert(0, 10)
	a.Insert(0, 20)

	var count float64
	a.Sample(func(args metrics.Args, v float64) {
		if args.MetricSuffix == "count" && args.Labels.Immediate == "i" {
			count = v
		}
	})
	assert.Equal(t, float64(0), count)
}

func TestAnomalyScoreConstantValueAcrossBucketsYieldsStableScore(t *testing.T) {
	a := NewAnomalyScore(0, newTestAnomalyScoreConfig())
	a.Insert(0, 10)
	a.Insert(minute, 10)
	a.Insert(2*minute, 10)

	var immediateMean, immediateCount, referenceMean, score float64
	a.Sample(func(args metrics.Args, v float64) {
		switch {
		case args.MetricSuffix == "count" && args.Labels.Immediate == "i":
			immediateCount = v
		case args.MetricSuffix == "mean" && args.Labels.Immediate == "i":
			immediateMean = v
		case args.MetricSuffix == "mean" && args.Labels.Reference == "r":
			referenceMean = v
		case args.MetricSuffix == "score":
			score = v
		}
	})

	assert.Equal(t, float64(1), immediateCount)
	assert.InDelta(t, 10, immediateMean, 1e-9)
	assert.InDelta(t, 10, referenceMean, 1e-9)
	assert.InDelta(t, 10.0/11.0, score, 1e-9)
}

func TestAnomalyScoreSaveLoadRoundTrips(t *testing.T) {
	cfg := newTestAnomalyScoreConfig()
	a := NewAnomalyScore(0, cfg)
	a.Insert(0, 10)
	a.Insert(minute, 20)

	saved := a.Save()
	require.NotNil(t, saved)
	restored := LoadAnomalyScore(2*minute, saved, cfg)

	var before, after []float64
	a.Sample(func(args metrics.Args, v float64) { before = append(before, v) })
	restored.Sample(func(args metrics.Args, v float64) { after = append(after, v) })
	assert.ElementsMatch(t, before, after)
}

func TestAnomalyScoreUpdateBootstrapsNewIntervalFromLifetimeWelford(t *testing.T) {
	cfg := newTestAnomalyScoreConfig()
	a := NewAnomalyScore(0, cfg)
	a.Insert(0, 10)
	a.Insert(minute, 10)

	newCfg := cfg
	newCfg.Immediate = map[string]WindowConfig{
		"i":   cfg.Immediate["i"],
		"new": {BinWidth: minute, NumBins: 3},
	}
	updated := a.Update(minute, newCfg)

	var newMean float64
	updated.Sample(func(args metrics.Args, v float64) {
		if args.MetricSuffix == "mean" && args.Labels.Immediate == "new" {
			newMean = v
		}
	})
	// A brand new interval is bootstrapped from the current lifetime
	// welford in every bucket, so first == current and the windowed
	// count is exactly zero; mean is undefined and reads as zero.
	assert.Equal(t, float64(0), newMean)
}
