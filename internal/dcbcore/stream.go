package dcbcore

import "strings"

// DefaultPurpose is the literal purpose name the spec singles out for the
// "ctx#default" canonical form.
const DefaultPurpose = "default"

// EventStreamId is a (context, purpose) pair identifying a logical stream.
// Either axis may be absent, meaning wildcard on that axis. A stream id
// with any wildcard axis may be used for reads only.
type EventStreamId struct {
	context      string
	purpose      string
	hasContext   bool
	hasPurpose   bool
}

// NewEventStreamId builds a fully-specified (writable) stream id.
func NewEventStreamId(context, purpose string) EventStreamId {
	return EventStreamId{context: context, purpose: purpose, hasContext: true, hasPurpose: true}
}

// NewEventStreamIdContextOnly builds a stream id with a wildcard purpose.
func NewEventStreamIdContextOnly(context string) EventStreamId {
	return EventStreamId{context: context, hasContext: true}
}

// WildcardEventStreamId returns the fully-wildcard stream id (matches any
// stream for reads; cannot be written to).
func WildcardEventStreamId() EventStreamId { return EventStreamId{} }

// Context returns the context component and whether it is present.
func (s EventStreamId) Context() (string, bool) { return s.context, s.hasContext }

// Purpose returns the purpose component and whether it is present.
func (s EventStreamId) Purpose() (string, bool) { return s.purpose, s.hasPurpose }

// IsWildcard reports whether either axis is a wildcard.
func (s EventStreamId) IsWildcard() bool { return !s.hasContext || !s.hasPurpose }

// CanRead reports whether s, used as a read filter, admits target: on each
// axis s's component must be absent or equal to target's.
func (s EventStreamId) CanRead(target EventStreamId) bool {
	if s.hasContext && (!target.hasContext || s.context != target.context) {
		return false
	}
	if s.hasPurpose && (!target.hasPurpose || s.purpose != target.purpose) {
		return false
	}
	return true
}

// Equal reports value-equality between two stream ids.
func (s EventStreamId) Equal(other EventStreamId) bool {
	return s.hasContext == other.hasContext && s.context == other.context &&
		s.hasPurpose == other.hasPurpose && s.purpose == other.purpose
}

// String renders the canonical textual form: "" (both wildcard), "ctx"
// (purpose wildcard), or "ctx#purpose".
func (s EventStreamId) String() string {
	if !s.hasContext {
		return ""
	}
	if !s.hasPurpose {
		return s.context
	}
	return s.context + "#" + s.purpose
}

// ParseEventStreamId parses the canonical textual form produced by String.
func ParseEventStreamId(str string) EventStreamId {
	if str == "" {
		return EventStreamId{}
	}
	idx := strings.IndexByte(str, '#')
	if idx < 0 {
		return EventStreamId{context: str, hasContext: true}
	}
	return EventStreamId{
		context:    str[:idx],
		purpose:    str[idx+1:],
		hasContext: true,
		hasPurpose: true,
	}
}
