package span

import (
	"strconv"
	"strings"
)

// KeySet is the ordered, configured set of SpanKeys a SpanConfig groups
// spans by.
type KeySet []SpanKey

// Equal reports whether two key sets are the same sequence of keys — used
// to decide whether a config change is "compatible" (spec §3: "on update
// with changed group-key set, all groups are dropped").
func (a KeySet) Equal(b KeySet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// KeyValue is one (possibly absent) extracted value in a group key tuple.
type KeyValue struct {
	Present bool
	Value   TagValue
}

// GroupKey is the canonical, comparable encoding of a key tuple: two spans
// whose extracted key values coincide produce an identical GroupKey and so
// join the same group.
type GroupKey string

// Extract evaluates every configured key against (s, parent), per spec
// §4.6: "entries whose extraction returns None are omitted from the
// tuple." It returns both the per-key values (for label rendering) and
// their canonical GroupKey encoding (for group lookup).
func (ks KeySet) Extract(s *Span, parent *Span) ([]KeyValue, GroupKey) {
	values := make([]KeyValue, len(ks))
	var b strings.Builder
	for i, k := range ks {
		v, ok := k.Get(s, parent)
		values[i] = KeyValue{Present: ok, Value: v}
		if !ok {
			b.WriteByte('\x00')
			continue
		}
		encodeValue(&b, v)
		b.WriteByte('\x1f')
	}
	return values, GroupKey(b.String())
}

func encodeValue(b *strings.Builder, v TagValue) {
	switch v.Kind {
	case TagString:
		b.WriteByte('s')
		b.WriteString(v.String)
	case TagInt64:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(v.Int64, 10))
	case TagBool:
		b.WriteByte('b')
		if v.Bool {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
}
