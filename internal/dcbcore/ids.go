// Package dcbcore holds the identifiers and value objects of the event
// store: EventId, EventReference, Tag, Tags, EventStreamId, EventType and
// Limit, plus the query model built on top of them.
package dcbcore

import (
	"strings"

	"github.com/google/uuid"
)

// EventId is an opaque, globally-unique identifier for a stored event.
// Equality is value-equality on the underlying UUID.
type EventId struct {
	value uuid.UUID
}

// NewEventId generates a fresh EventId using UUIDv7 (time-ordered, index
// friendly), falling back to UUIDv4 if UUIDv7 generation returns an error.
func NewEventId() EventId {
	if id, err := uuid.NewV7(); err == nil {
		return EventId{value: id}
	}
	return EventId{value: uuid.New()}
}

// ParseEventId parses the canonical string form of an EventId.
func ParseEventId(s string) (EventId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EventId{}, err
	}
	return EventId{value: id}, nil
}

// String returns the canonical textual form.
func (e EventId) String() string { return e.value.String() }

// Equal reports value-equality between two EventIds.
func (e EventId) Equal(other EventId) bool { return e.value == other.value }

// IsZero reports whether this is the zero-value EventId.
func (e EventId) IsZero() bool { return e.value == uuid.Nil }

// EventReference identifies a stored event by id and its store-wide,
// strictly monotonic position. Ordering between references is determined
// solely by Position.
type EventReference struct {
	ID       EventId
	Position uint64
}

// NoReference is the absence of a reference, used where "beginning of the
// log" is intended.
func NoReference() *EventReference { return nil }

// HappenedBefore reports whether r happened strictly before other, by
// position.
func (r EventReference) HappenedBefore(other EventReference) bool {
	return r.Position < other.Position
}

// HappenedAfter reports whether r happened strictly after other, by
// position.
func (r EventReference) HappenedAfter(other EventReference) bool {
	return r.Position > other.Position
}

// Equal reports whether two references name the same event. Per spec.md
// §9's last Open Question, this compares the full (id, position) pair, not
// position alone.
func (r EventReference) Equal(other EventReference) bool {
	return r.ID.Equal(other.ID) && r.Position == other.Position
}

// EqualRef compares two optional references, treating both-absent as equal.
func EqualRef(a, b *EventReference) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// EventType is a short, opaque string naming an event's schema. The engine
// never interprets it beyond equality and set membership.
type EventType string

// Limit bounds the number of events a query may return. A nil Limit means
// unbounded; when present it must be > 0 (enforced by NewLimit).
type Limit struct {
	value *uint64
}

// NewLimit constructs a Limit. It panics if n == 0, matching the spec's
// invariant that a present Limit is always > 0 — callers needing "no limit"
// should use NoLimit().
func NewLimit(n uint64) Limit {
	if n == 0 {
		panic("dcbcore: NewLimit requires n > 0; use NoLimit() for unbounded")
	}
	return Limit{value: &n}
}

// NoLimit returns the absent Limit (unbounded).
func NoLimit() Limit { return Limit{} }

// IsSet reports whether a bound is present.
func (l Limit) IsSet() bool { return l.value != nil }

// Value returns the bound and whether it was set.
func (l Limit) Value() (uint64, bool) {
	if l.value == nil {
		return 0, false
	}
	return *l.value, true
}

// splitTagString parses the canonical "key:value" form used by Tag and
// returns the two parts plus flags reporting which of them are present.
// The empty string, ":" and whitespace-only strings report neither part.
func splitTagString(s string) (key, value string, hasKey, hasValue bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false, false
	}
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return s, "", true, false
	}
	key = s[:idx]
	value = s[idx+1:]
	if key == "" && value == "" {
		return "", "", false, false
	}
	return key, value, key != "", true
}
