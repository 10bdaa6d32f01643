package processor

import "github.com/AnomalyAI/anomalyd/internal/metrics"

// StatsState is the persisted form of a Stats processor: each field is
// nil both when its sub-processor is disabled by config and (for Save)
// when it was never enabled.
type StatsState struct {
	AnomalyScore *AnomalyScoreState
	MeanStddev   *MeanStddevState
	Summary      *SummaryState
	Histogram    *HistogramState
}

// Stats fans a metric's observations out to whichever statistics
// sub-processors are configured (spec §3 StatsConfig): anomaly score,
// mean/stddev, summary and histogram are independent and individually
// optional.
type Stats struct {
	config       StatsConfig
	anomalyScore *AnomalyScore
	meanStddev   *MeanStddev
	summary      *Summary
	histogram    *Histogram
}

// NewStats builds a fresh fan-out for config, instantiating only the
// enabled sub-processors.
func NewStats(t int64, cfg StatsConfig) *Stats {
	s := &Stats{config: cfg}
	if cfg.AnomalyScore != nil {
		s.anomalyScore = NewAnomalyScore(t, *cfg.AnomalyScore)
	}
	if cfg.MeanStddev != nil {
		s.meanStddev = NewMeanStddev(*cfg.MeanStddev)
	}
	if cfg.Summary != nil {
		s.summary = NewSummary(t, *cfg.Summary)
	}
	if cfg.Histogram != nil {
		s.histogram = NewHistogram(*cfg.Histogram)
	}
	return s
}

// Update carries each enabled sub-processor's state forward (reconciling
// it against the new sub-config) if config keeps it enabled, starts one
// fresh if config newly enables it, and drops it if config disables it.
func (s *Stats) Update(t int64, cfg StatsConfig) *Stats {
	out := &Stats{config: cfg}
	if cfg.AnomalyScore != nil {
		if s.anomalyScore != nil {
			out.anomalyScore = s.anomalyScore.Update(t, *cfg.AnomalyScore)
		} else {
			out.anomalyScore = NewAnomalyScore(t, *cfg.AnomalyScore)
		}
	}
	if cfg.MeanStddev != nil {
		if s.meanStddev != nil {
			out.meanStddev = s.meanStddev.Update(*cfg.MeanStddev)
		} else {
			out.meanStddev = NewMeanStddev(*cfg.MeanStddev)
		}
	}
	if cfg.Summary != nil {
		if s.summary != nil {
			out.summary = s.summary.Update(t, *cfg.Summary)
		} else {
			out.summary = NewSummary(t, *cfg.Summary)
		}
	}
	if cfg.Histogram != nil {
		if s.histogram != nil {
			out.histogram = s.histogram.Update(*cfg.Histogram)
		} else {
			out.histogram = NewHistogram(*cfg.Histogram)
		}
	}
	return out
}

// LoadStats restores each enabled sub-processor from its persisted
// state (or fresh, if config newly enables a sub-processor that wasn't
// previously saved).
func LoadStats(t int64, state *StatsState, cfg StatsConfig) *Stats {
	s := &Stats{config: cfg}
	if cfg.AnomalyScore != nil {
		var saved *AnomalyScoreState
		if state != nil {
			saved = state.AnomalyScore
		}
		s.anomalyScore = LoadAnomalyScore(t, saved, *cfg.AnomalyScore)
	}
	if cfg.MeanStddev != nil {
		var saved *MeanStddevState
		if state != nil {
			saved = state.MeanStddev
		}
		s.meanStddev = LoadMeanStddev(saved, *cfg.MeanStddev)
	}
	if cfg.Summary != nil {
		var saved *SummaryState
		if state != nil {
			saved = state.Summary
		}
		s.summary = LoadSummary(t, saved, *cfg.Summary)
	}
	if cfg.Histogram != nil {
		var saved *HistogramState
		if state != nil {
			saved = state.Histogram
		}
		s.histogram = LoadHistogram(saved, *cfg.Histogram)
	}
	return s
}

// Save snapshots every enabled sub-processor.
func (s *Stats) Save() *StatsState {
	out := &StatsState{}
	if s.anomalyScore != nil {
		out.AnomalyScore = s.anomalyScore.Save()
	}
	if s.meanStddev != nil {
		out.MeanStddev = s.meanStddev.Save()
	}
	if s.summary != nil {
		out.Summary = s.summary.Save()
	}
	if s.histogram != nil {
		out.Histogram = s.histogram.Save()
	}
	return out
}

// Insert feeds value into every enabled sub-processor.
func (s *Stats) Insert(t int64, value float64) {
	if s.anomalyScore != nil {
		s.anomalyScore.Insert(t, value)
	}
	if s.meanStddev != nil {
		s.meanStddev.Insert(value)
	}
	if s.summary != nil {
		s.summary.Insert(t, value)
	}
	if s.histogram != nil {
		s.histogram.Insert(value)
	}
}

// Sample emits every enabled sub-processor's samples.
func (s *Stats) Sample(metric func(metrics.Args, float64)) {
	if s.anomalyScore != nil {
		s.anomalyScore.Sample(metric)
	}
	if s.meanStddev != nil {
		s.meanStddev.Sample(metric)
	}
	if s.summary != nil {
		s.summary.Sample(metric)
	}
	if s.histogram != nil {
		s.histogram.Sample(metric)
	}
}
