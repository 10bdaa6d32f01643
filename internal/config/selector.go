package config

import (
	"fmt"
	"regexp"

	"github.com/AnomalyAI/anomalyd/internal/span"
)

// SelectorSpec is the YAML-decodable tagged union mirroring
// internal/span.Selector's closed family of combinators (spec §4.1).
// Exactly one field is expected to be set; Build walks it into a runtime
// span.Selector.
type SelectorSpec struct {
	All     []SelectorSpec  `yaml:"all,omitempty"`
	Any     []SelectorSpec  `yaml:"any,omitempty"`
	Not     *SelectorSpec   `yaml:"not,omitempty"`
	Has     *SpanKeySpec    `yaml:"has,omitempty"`
	In      *SetSpec        `yaml:"in,omitempty"`
	NotIn   *SetSpec        `yaml:"not_in,omitempty"`
	Match   *RegexSpec      `yaml:"match,omitempty"`
	NoMatch *RegexSpec      `yaml:"no_match,omitempty"`
	KeyEq   *KeyPairSpec    `yaml:"key_eq,omitempty"`
	KeyNe   *KeyPairSpec    `yaml:"key_ne,omitempty"`
	Eq      *IntCompareSpec `yaml:"eq,omitempty"`
	Ne      *IntCompareSpec `yaml:"ne,omitempty"`
	Inside  *RangeSpec      `yaml:"inside,omitempty"`
	Outside *RangeSpec      `yaml:"outside,omitempty"`
	IsTrue  *SpanKeySpec    `yaml:"is_true,omitempty"`
	IsFalse *SpanKeySpec    `yaml:"is_false,omitempty"`
}

// SetSpec is a literal set of strings, used by In/NotIn.
type SetSpec struct {
	Key    SpanKeySpec `yaml:"key"`
	Values []string    `yaml:"values" validate:"required,min=1"`
}

// RegexSpec is a key plus a regular expression pattern, used by
// Match/NoMatch.
type RegexSpec struct {
	Key     SpanKeySpec `yaml:"key"`
	Pattern string      `yaml:"pattern" validate:"required"`
}

// KeyPairSpec is two keys compared against each other, used by
// KeyEq/KeyNe.
type KeyPairSpec struct {
	A SpanKeySpec `yaml:"a"`
	B SpanKeySpec `yaml:"b"`
}

// IntCompareSpec is a key compared against an int64 literal, used by
// Eq/Ne.
type IntCompareSpec struct {
	Key   SpanKeySpec `yaml:"key"`
	Value int64       `yaml:"value"`
}

// BoundSpec is one side of a Range: an operator ("gt"/"ge"/"lt"/"le") and a
// literal.
type BoundSpec struct {
	Op    string `yaml:"op" validate:"required,oneof=gt ge lt le"`
	Value int64  `yaml:"value"`
}

// RangeSpec is a key plus optional lower/upper bounds, used by
// Inside/Outside.
type RangeSpec struct {
	Key   SpanKeySpec `yaml:"key"`
	Lower *BoundSpec  `yaml:"lower,omitempty"`
	Upper *BoundSpec  `yaml:"upper,omitempty"`
}

// Build constructs a span.KeyName from a KeyNameSpec-shaped SpanKeySpec.
func (k SpanKeySpec) buildKeyName() (span.KeyName, error) {
	switch k.Kind {
	case "operation_name":
		return span.OperationName(), nil
	case "service_name":
		return span.ServiceName(), nil
	case "duration":
		return span.Duration(), nil
	case "process_tag":
		if k.Tag == "" {
			return span.KeyName{}, fmt.Errorf("config: process_tag key requires a tag name")
		}
		return span.ProcessTag(k.Tag), nil
	case "span_tag":
		if k.Tag == "" {
			return span.KeyName{}, fmt.Errorf("config: span_tag key requires a tag name")
		}
		return span.SpanTagKey(k.Tag), nil
	default:
		return span.KeyName{}, fmt.Errorf("config: unknown key kind %q", k.Kind)
	}
}

// Build constructs a span.SpanKey, defaulting Scope to "current".
func (k SpanKeySpec) Build() (span.SpanKey, error) {
	name, err := k.buildKeyName()
	if err != nil {
		return span.SpanKey{}, err
	}
	if k.Scope == "parent" {
		return span.Parent(name), nil
	}
	return span.Current(name), nil
}

func buildRange(r RangeSpec) (span.Range, error) {
	key, err := r.Key.Build()
	if err != nil {
		return span.Range{}, err
	}
	var out span.Range
	_ = key // range building itself doesn't need the key; callers attach it
	if r.Lower != nil {
		inclusive := r.Lower.Op == "ge"
		if r.Lower.Op != "gt" && r.Lower.Op != "ge" {
			return span.Range{}, fmt.Errorf("config: range lower bound must be gt/ge, got %q", r.Lower.Op)
		}
		out.Lower = &span.LowerBound{Value: r.Lower.Value, Inclusive: inclusive}
	}
	if r.Upper != nil {
		inclusive := r.Upper.Op == "le"
		if r.Upper.Op != "lt" && r.Upper.Op != "le" {
			return span.Range{}, fmt.Errorf("config: range upper bound must be lt/le, got %q", r.Upper.Op)
		}
		out.Upper = &span.UpperBound{Value: r.Upper.Value, Inclusive: inclusive}
	}
	return out, nil
}

// Build walks the spec tree into a runtime span.Selector, compiling
// regular expressions and validating that exactly one combinator is set.
func (s SelectorSpec) Build() (span.Selector, error) {
	set := 0
	var result span.Selector
	var err error

	if s.All != nil {
		set++
		result, err = buildAll(s.All)
	}
	if s.Any != nil {
		set++
		result, err = buildAny(s.Any)
	}
	if s.Not != nil {
		set++
		var inner span.Selector
		inner, err = s.Not.Build()
		result = span.Not{Selector: inner}
	}
	if s.Has != nil {
		set++
		var key span.SpanKey
		key, err = s.Has.Build()
		result = span.Has{Key: key}
	}
	if s.In != nil {
		set++
		result, err = buildIn(*s.In)
	}
	if s.NotIn != nil {
		set++
		result, err = buildNotIn(*s.NotIn)
	}
	if s.Match != nil {
		set++
		result, err = buildMatch(*s.Match)
	}
	if s.NoMatch != nil {
		set++
		result, err = buildNoMatch(*s.NoMatch)
	}
	if s.KeyEq != nil {
		set++
		result, err = buildKeyEq(*s.KeyEq)
	}
	if s.KeyNe != nil {
		set++
		result, err = buildKeyNe(*s.KeyNe)
	}
	if s.Eq != nil {
		set++
		result, err = buildEq(*s.Eq)
	}
	if s.Ne != nil {
		set++
		result, err = buildNe(*s.Ne)
	}
	if s.Inside != nil {
		set++
		result, err = buildInside(*s.Inside)
	}
	if s.Outside != nil {
		set++
		result, err = buildOutside(*s.Outside)
	}
	if s.IsTrue != nil {
		set++
		var key span.SpanKey
		key, err = s.IsTrue.Build()
		result = span.IsTrue{Key: key}
	}
	if s.IsFalse != nil {
		set++
		var key span.SpanKey
		key, err = s.IsFalse.Build()
		result = span.IsFalse{Key: key}
	}

	if err != nil {
		return nil, err
	}
	if set != 1 {
		return nil, fmt.Errorf("config: selector must set exactly one combinator, got %d", set)
	}
	return result, nil
}

func buildAll(specs []SelectorSpec) (span.Selector, error) {
	out := make(span.All, len(specs))
	for i, sp := range specs {
		sel, err := sp.Build()
		if err != nil {
			return nil, err
		}
		out[i] = sel
	}
	return out, nil
}

func buildAny(specs []SelectorSpec) (span.Selector, error) {
	out := make(span.Any, len(specs))
	for i, sp := range specs {
		sel, err := sp.Build()
		if err != nil {
			return nil, err
		}
		out[i] = sel
	}
	return out, nil
}

func buildSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func buildIn(spec SetSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	return span.In{Key: key, Values: buildSet(spec.Values)}, nil
}

func buildNotIn(spec SetSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	return span.NotIn{Key: key, Values: buildSet(spec.Values)}, nil
}

func buildMatch(spec RegexSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("config: invalid regex %q: %w", spec.Pattern, err)
	}
	return span.MatchRegex{Key: key, Re: re}, nil
}

func buildNoMatch(spec RegexSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("config: invalid regex %q: %w", spec.Pattern, err)
	}
	return span.NoMatchRegex{Key: key, Re: re}, nil
}

func buildKeyEq(spec KeyPairSpec) (span.Selector, error) {
	a, err := spec.A.Build()
	if err != nil {
		return nil, err
	}
	b, err := spec.B.Build()
	if err != nil {
		return nil, err
	}
	return span.KeyEq{A: a, B: b}, nil
}

func buildKeyNe(spec KeyPairSpec) (span.Selector, error) {
	a, err := spec.A.Build()
	if err != nil {
		return nil, err
	}
	b, err := spec.B.Build()
	if err != nil {
		return nil, err
	}
	return span.KeyNe{A: a, B: b}, nil
}

func buildEq(spec IntCompareSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	return span.Eq{Key: key, Value: spec.Value}, nil
}

func buildNe(spec IntCompareSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	return span.Ne{Key: key, Value: spec.Value}, nil
}

func buildInside(spec RangeSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	r, err := buildRange(spec)
	if err != nil {
		return nil, err
	}
	return span.Inside{Key: key, Range: r}, nil
}

func buildOutside(spec RangeSpec) (span.Selector, error) {
	key, err := spec.Key.Build()
	if err != nil {
		return nil, err
	}
	r, err := buildRange(spec)
	if err != nil {
		return nil, err
	}
	return span.Outside{Key: key, Range: r}, nil
}
