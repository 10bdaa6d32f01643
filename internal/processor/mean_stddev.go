package processor

import (
	"github.com/AnomalyAI/anomalyd/internal/accum"
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/numeric"
)

// MeanStddevState is the persisted form of a MeanStddev processor: at
// most one of the two fields is meaningful, selected by Algorithm.
type MeanStddevState struct {
	Algorithm MeanStddevAlgorithm
	CountSum  accum.CountSum
	Welford   numeric.Welford
}

// MeanStddev accumulates a metric's lifetime mean and standard
// deviation via either the cheap CountSum or the numerically careful
// Welford algorithm (spec §4.4.1).
type MeanStddev struct {
	config   MeanStddevConfig
	countSum accum.CountSum
	welford  numeric.Welford
}

// NewMeanStddev builds a fresh accumulator for config.
func NewMeanStddev(cfg MeanStddevConfig) *MeanStddev {
	return &MeanStddev{config: cfg}
}

// Update carries accumulated state forward if the algorithm is
// unchanged, else starts fresh (an algorithm switch cannot be
// reconciled — CountSum and Welford keep disjoint state).
func (m *MeanStddev) Update(cfg MeanStddevConfig) *MeanStddev {
	if cfg.Algorithm != m.config.Algorithm {
		return NewMeanStddev(cfg)
	}
	return &MeanStddev{config: cfg, countSum: m.countSum, welford: m.welford}
}

// LoadMeanStddev restores state saved under the same algorithm, else
// starts fresh.
func LoadMeanStddev(state *MeanStddevState, cfg MeanStddevConfig) *MeanStddev {
	if state != nil && state.Algorithm == cfg.Algorithm {
		return &MeanStddev{config: cfg, countSum: state.CountSum, welford: state.Welford}
	}
	return NewMeanStddev(cfg)
}

// Save snapshots the accumulator for persistence.
func (m *MeanStddev) Save() *MeanStddevState {
	return &MeanStddevState{Algorithm: m.config.Algorithm, CountSum: m.countSum, Welford: m.welford}
}

// Insert folds one observation into whichever accumulator is active.
func (m *MeanStddev) Insert(value float64) {
	switch m.config.Algorithm {
	case AlgorithmCountSum:
		m.countSum.Insert(value)
	case AlgorithmWelford:
		m.welford.Insert(value)
	}
}

// Sample emits count/sum (CountSum) or count/mean/m2 (Welford), tagged
// with the algorithm as metric_type.
func (m *MeanStddev) Sample(metric func(metrics.Args, float64)) {
	switch m.config.Algorithm {
	case AlgorithmCountSum:
		metric(metrics.Args{MetricSuffix: "count", MetricType: "count_sum"}, float64(m.countSum.Count))
		metric(metrics.Args{MetricSuffix: "sum", MetricType: "count_sum"}, m.countSum.Sum)
	case AlgorithmWelford:
		snap := m.welford.Extract()
		metric(metrics.Args{MetricSuffix: "count", MetricType: "welford"}, snap.Count)
		metric(metrics.Args{MetricSuffix: "mean", MetricType: "welford"}, snap.Mean)
		metric(metrics.Args{MetricSuffix: "m2", MetricType: "welford"}, snap.M2)
	}
}
