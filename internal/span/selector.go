package span

import "regexp"

// Selector matches a (span, optional parent) pair, yielding a boolean.
// This is the Go rendition of the original's recursive `enum Selector`: a
// closed family of concrete types, each implementing Match, standing in
// for a sum type Go does not have.
type Selector interface {
	Match(s *Span, parent *Span) bool
}

// All is conjunction over its operands; an empty All matches everything.
type All []Selector

func (a All) Match(s, parent *Span) bool {
	for _, sel := range a {
		if !sel.Match(s, parent) {
			return false
		}
	}
	return true
}

// Any is disjunction over its operands; an empty Any matches nothing.
type Any []Selector

func (a Any) Match(s, parent *Span) bool {
	for _, sel := range a {
		if sel.Match(s, parent) {
			return true
		}
	}
	return false
}

// Not negates its operand.
type Not struct{ Selector Selector }

func (n Not) Match(s, parent *Span) bool { return !n.Selector.Match(s, parent) }

// Has matches when the key extracts any value.
type Has struct{ Key SpanKey }

func (h Has) Match(s, parent *Span) bool {
	_, ok := h.Key.Get(s, parent)
	return ok
}

// In matches a string-typed key whose value is a member of Values.
type In struct {
	Key    SpanKey
	Values map[string]struct{}
}

func (in In) Match(s, parent *Span) bool {
	v, ok := in.Key.Get(s, parent)
	if !ok || v.Kind != TagString {
		return false
	}
	_, found := in.Values[v.String]
	return found
}

// NotIn is In's complement, but (like the original) false on a non-string
// or absent value rather than true — a missing/mistyped key is never "not
// in" the set either.
type NotIn struct {
	Key    SpanKey
	Values map[string]struct{}
}

func (n NotIn) Match(s, parent *Span) bool {
	v, ok := n.Key.Get(s, parent)
	if !ok || v.Kind != TagString {
		return false
	}
	_, found := n.Values[v.String]
	return !found
}

// MatchRegex matches a string-typed key against a regular expression.
type MatchRegex struct {
	Key SpanKey
	Re  *regexp.Regexp
}

func (m MatchRegex) Match(s, parent *Span) bool {
	v, ok := m.Key.Get(s, parent)
	if !ok || v.Kind != TagString {
		return false
	}
	return m.Re.MatchString(v.String)
}

// NoMatchRegex is MatchRegex's complement, but false (not true) when the
// value is missing or non-string.
type NoMatchRegex struct {
	Key SpanKey
	Re  *regexp.Regexp
}

func (n NoMatchRegex) Match(s, parent *Span) bool {
	v, ok := n.Key.Get(s, parent)
	if !ok || v.Kind != TagString {
		return false
	}
	return !n.Re.MatchString(v.String)
}

// KeyEq compares two keys' extracted values, type-aware; two absent values
// compare equal.
type KeyEq struct{ A, B SpanKey }

func (k KeyEq) Match(s, parent *Span) bool {
	av, aok := k.A.Get(s, parent)
	bv, bok := k.B.Get(s, parent)
	if !aok || !bok {
		return aok == bok
	}
	return av == bv
}

// KeyNe is KeyEq's complement.
type KeyNe struct{ A, B SpanKey }

func (k KeyNe) Match(s, parent *Span) bool {
	return !KeyEq(k).Match(s, parent)
}

// Eq matches an int64-typed key against a literal.
type Eq struct {
	Key   SpanKey
	Value int64
}

func (e Eq) Match(s, parent *Span) bool {
	v, ok := e.Key.Get(s, parent)
	return ok && v.Kind == TagInt64 && v.Int64 == e.Value
}

// Ne is Eq's complement, but false (not true) on a missing/mistyped value.
type Ne struct {
	Key   SpanKey
	Value int64
}

func (n Ne) Match(s, parent *Span) bool {
	v, ok := n.Key.Get(s, parent)
	return ok && v.Kind == TagInt64 && v.Int64 != n.Value
}

// LowerBound is an open ("Gt") or closed ("Ge") lower range bound.
type LowerBound struct {
	Value    int64
	Inclusive bool
}

func (b LowerBound) matches(n int64) bool {
	if b.Inclusive {
		return n >= b.Value
	}
	return n > b.Value
}

// UpperBound is an open ("Lt") or closed ("Le") upper range bound.
type UpperBound struct {
	Value     int64
	Inclusive bool
}

func (b UpperBound) matches(n int64) bool {
	if b.Inclusive {
		return n <= b.Value
	}
	return n < b.Value
}

// Range is a pair of optional bounds; a missing bound is open.
type Range struct {
	Lower *LowerBound
	Upper *UpperBound
}

func (r Range) contains(n int64) bool {
	if r.Lower != nil && !r.Lower.matches(n) {
		return false
	}
	if r.Upper != nil && !r.Upper.matches(n) {
		return false
	}
	return true
}

// Inside matches an int64-typed key falling within Range.
type Inside struct {
	Key   SpanKey
	Range Range
}

func (in Inside) Match(s, parent *Span) bool {
	v, ok := in.Key.Get(s, parent)
	return ok && v.Kind == TagInt64 && in.Range.contains(v.Int64)
}

// Outside matches an int64-typed key falling outside Range.
type Outside struct {
	Key   SpanKey
	Range Range
}

func (o Outside) Match(s, parent *Span) bool {
	v, ok := o.Key.Get(s, parent)
	return ok && v.Kind == TagInt64 && !o.Range.contains(v.Int64)
}

// IsTrue matches a bool-typed key whose value is true.
type IsTrue struct{ Key SpanKey }

func (t IsTrue) Match(s, parent *Span) bool {
	v, ok := t.Key.Get(s, parent)
	return ok && v.Kind == TagBool && v.Bool
}

// IsFalse matches a bool-typed key whose value is false.
type IsFalse struct{ Key SpanKey }

func (f IsFalse) Match(s, parent *Span) bool {
	v, ok := f.Key.Get(s, parent)
	return ok && v.Kind == TagBool && !v.Bool
}
