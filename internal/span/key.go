package span

// KeyName names a value extractable from a single span, per spec §3.
type KeyName struct {
	kind kind
	tag  string // meaningful only for ProcessTag/SpanTag
}

type kind int

const (
	kindOperationName kind = iota
	kindServiceName
	kindProcessTag
	kindSpanTag
	kindDuration
)

func OperationName() KeyName         { return KeyName{kind: kindOperationName} }
func ServiceName() KeyName           { return KeyName{kind: kindServiceName} }
func Duration() KeyName              { return KeyName{kind: kindDuration} }
func ProcessTag(tag string) KeyName  { return KeyName{kind: kindProcessTag, tag: tag} }
func SpanTagKey(tag string) KeyName  { return KeyName{kind: kindSpanTag, tag: tag} }

// Required reports whether a well-formed span must always produce a value
// for this key (spec §3: "OperationName, ServiceName and Duration are
// required").
func (k KeyName) Required() bool {
	switch k.kind {
	case kindOperationName, kindServiceName, kindDuration:
		return true
	default:
		return false
	}
}

// Label returns the metric label name this key is rendered under (spec
// §4.6: group key tuples become metric labels).
func (k KeyName) Label() string {
	switch k.kind {
	case kindOperationName:
		return "operation_name"
	case kindServiceName:
		return "service_name"
	case kindDuration:
		return "duration"
	case kindProcessTag:
		return "process_tag_" + k.tag
	case kindSpanTag:
		return "span_tag_" + k.tag
	default:
		return ""
	}
}

// Get extracts this key's value from a span, or reports no value.
func (k KeyName) Get(s *Span) (TagValue, bool) {
	switch k.kind {
	case kindOperationName:
		return TagValue{Kind: TagString, String: s.OperationName}, true
	case kindServiceName:
		return TagValue{Kind: TagString, String: s.Process.ServiceName}, true
	case kindDuration:
		return TagValue{Kind: TagInt64, Int64: s.Duration}, true
	case kindProcessTag:
		return findTag(s.Process.Tags, k.tag)
	case kindSpanTag:
		return findTag(s.Tags, k.tag)
	default:
		return TagValue{}, false
	}
}

// SpanKey selects a KeyName off either the current span or its parent
// (spec §3: "a pair (Current|Parent, KeyName)").
type SpanKey struct {
	onParent bool
	name     KeyName
}

// Current builds a SpanKey that reads off the span itself.
func Current(name KeyName) SpanKey { return SpanKey{name: name} }

// Parent builds a SpanKey that reads off the span's parent, if any.
func Parent(name KeyName) SpanKey { return SpanKey{onParent: true, name: name} }

// Label prefixes KeyName.Label with "parent_" when this key reads off the
// parent span.
func (k SpanKey) Label() string {
	if k.onParent {
		return "parent_" + k.name.Label()
	}
	return k.name.Label()
}

// Required mirrors KeyName.Required, except a parent-scoped key is never
// required (a root span has no parent).
func (k SpanKey) Required() bool {
	if k.onParent {
		return false
	}
	return k.name.Required()
}

// Get extracts the key's value against (span, optional parent).
func (k SpanKey) Get(s *Span, parent *Span) (TagValue, bool) {
	if k.onParent {
		if parent == nil {
			return TagValue{}, false
		}
		return k.name.Get(parent)
	}
	return k.name.Get(s)
}
