package config

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct-tag validation (required fields, oneof enums,
// quantile/compression ranges) and the checks a tag-based validator can't
// express: exactly one MetricSource variant per metric, ascending
// histogram bounds, and that every rule references a declared
// configuration. It is run before processor.update() accepts a loaded
// config (SPEC_FULL §4, "Struct validation").
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for name, sc := range c.Configs {
		for metricName, mc := range sc.Metrics {
			if err := validate.Struct(mc); err != nil {
				return fmt.Errorf("config: configs.%s.metrics.%s: %w", name, metricName, err)
			}
			if err := mc.Source.validateOneVariant(); err != nil {
				return fmt.Errorf("config: configs.%s.metrics.%s.source: %w", name, metricName, err)
			}
			if mc.Stats.Histogram != nil {
				if err := validateAscending(mc.Stats.Histogram.Bounds); err != nil {
					return fmt.Errorf("config: configs.%s.metrics.%s.stats.histogram: %w", name, metricName, err)
				}
			}
			if mc.Stats.AnomalyScore != nil {
				if err := validate.Struct(mc.Stats.AnomalyScore); err != nil {
					return fmt.Errorf("config: configs.%s.metrics.%s.stats.anomaly_score: %w", name, metricName, err)
				}
			}
		}
	}

	for _, list := range c.Rules {
		for _, rule := range list {
			if _, ok := c.Configs[rule.Config]; !ok {
				return fmt.Errorf("config: rule references undeclared config %q", rule.Config)
			}
			if _, err := rule.Select.Build(); err != nil {
				return fmt.Errorf("config: rule for %q: %w", rule.Config, err)
			}
		}
	}
	return nil
}

func (s MetricSourceSpec) validateOneVariant() error {
	set := 0
	if s.Duration {
		set++
	}
	if s.SelfDuration {
		set++
	}
	if s.Tag != "" {
		set++
	}
	if s.TagExcept != nil {
		set++
	}
	if s.Rate != nil {
		set++
	}
	if s.Count != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one source variant must be set, got %d", set)
	}
	return nil
}

func validateAscending(bounds []float64) error {
	if !sort.Float64sAreSorted(bounds) {
		return fmt.Errorf("histogram bounds must be ascending")
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] == bounds[i-1] {
			return fmt.Errorf("histogram bounds must be strictly ascending (duplicate %v)", bounds[i])
		}
	}
	return nil
}
