package dcbcore

import "fmt"

// EventTypesFilter is a set of EventType names to match against. An empty
// filter is a wildcard: it matches every type.
type EventTypesFilter struct {
	types map[EventType]struct{}
}

// NewEventTypesFilter builds a filter over the given types. No arguments
// yields the wildcard filter.
func NewEventTypesFilter(types ...EventType) EventTypesFilter {
	f := EventTypesFilter{types: make(map[EventType]struct{}, len(types))}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

// IsWildcard reports whether the filter is empty (matches anything).
func (f EventTypesFilter) IsWildcard() bool { return len(f.types) == 0 }

// Matches reports whether t satisfies the filter.
func (f EventTypesFilter) Matches(t EventType) bool {
	if f.IsWildcard() {
		return true
	}
	_, ok := f.types[t]
	return ok
}

// Types returns the member types; empty for a wildcard filter.
func (f EventTypesFilter) Types() []EventType {
	out := make([]EventType, 0, len(f.types))
	for t := range f.types {
		out = append(out, t)
	}
	return out
}

// Expand returns a new filter whose member set is the union of this
// filter's types and, for each, the legacy types supplied by resolve. A
// wildcard filter expands to itself — there is nothing to widen.
func (f EventTypesFilter) Expand(resolve func(EventType) []EventType) EventTypesFilter {
	if f.IsWildcard() {
		return f
	}
	expanded := NewEventTypesFilter(f.Types()...)
	for t := range f.types {
		for _, legacy := range resolve(t) {
			expanded.types[legacy] = struct{}{}
		}
	}
	return expanded
}

// EventQueryItem pairs a type filter with a required tag set: it matches an
// event iff the type filter matches and the event's tags are a superset of
// Tags.
type EventQueryItem struct {
	eventTypes EventTypesFilter
	tags       Tags
}

// NewEventQueryItem builds a query item.
func NewEventQueryItem(types EventTypesFilter, tags Tags) EventQueryItem {
	return EventQueryItem{eventTypes: types, tags: tags}
}

// EventTypes returns the item's type filter.
func (qi EventQueryItem) EventTypes() EventTypesFilter { return qi.eventTypes }

// Tags returns the item's required tag set.
func (qi EventQueryItem) Tags() Tags { return qi.tags }

// Matches reports whether the item matches an event with the given type
// and tag set.
func (qi EventQueryItem) Matches(eventType EventType, eventTags Tags) bool {
	return qi.eventTypes.Matches(eventType) && eventTags.ContainsAll(qi.tags)
}

// queryState distinguishes the three states EventQuery.items can take:
// match-all (absent), match-none (present, empty), or OR-of-items.
type queryState int

const (
	queryStateMatchAll queryState = iota
	queryStateItems
)

// EventQuery selects events by OR-ing a set of EventQueryItems, optionally
// bounded above (inclusive) by position via Until. Three distinct states are
// representable: match-all (no items), match-none (an empty item list), and
// the general OR-of-items case — match-none and match-all must never be
// conflated, since that would break AppendCriteria round-tripping.
type EventQuery struct {
	state queryState
	items []EventQueryItem
	until *EventReference
}

// MatchAll returns the query matching every event.
func MatchAll() EventQuery { return EventQuery{state: queryStateMatchAll} }

// MatchNone returns the query matching no event.
func MatchNone() EventQuery { return EventQuery{state: queryStateItems, items: []EventQueryItem{}} }

// ForEvents returns the query matching events whose type matches filter and
// whose tags are a superset of tags — a single-item OR query.
func ForEvents(filter EventTypesFilter, tags Tags) EventQuery {
	return EventQuery{state: queryStateItems, items: []EventQueryItem{NewEventQueryItem(filter, tags)}}
}

// NewEventQuery builds the general OR-of-items query. A nil or empty slice
// is treated as match-none, distinct from MatchAll — callers wanting
// match-all must call MatchAll explicitly.
func NewEventQuery(items ...EventQueryItem) EventQuery {
	cp := make([]EventQueryItem, len(items))
	copy(cp, items)
	return EventQuery{state: queryStateItems, items: cp}
}

// IsMatchAll reports whether this is the match-all query.
func (q EventQuery) IsMatchAll() bool { return q.state == queryStateMatchAll }

// IsMatchNone reports whether this is the match-none query (items present
// but empty).
func (q EventQuery) IsMatchNone() bool { return q.state == queryStateItems && len(q.items) == 0 }

// Items returns the query's items and whether items are present at all
// (false only for the match-all state).
func (q EventQuery) Items() ([]EventQueryItem, bool) {
	if q.state == queryStateMatchAll {
		return nil, false
	}
	return q.items, true
}

// Until returns the inclusive upper position bound, if any.
func (q EventQuery) Until() *EventReference { return q.until }

// WithUntil returns a copy of q bounded above by r.
func (q EventQuery) WithUntil(r EventReference) EventQuery {
	cp := q
	cp.until = &r
	return cp
}

// UntilIfEarlier tightens the bound to whichever of q's current bound and r
// is earlier; if q has no bound, r becomes the bound.
func (q EventQuery) UntilIfEarlier(r EventReference) EventQuery {
	if q.until == nil || r.Position < q.until.Position {
		return q.WithUntil(r)
	}
	return q
}

// Matches reports whether the query matches an event with the given type,
// tags, and reference.
func (q EventQuery) Matches(eventType EventType, eventTags Tags, ref EventReference) bool {
	if q.until != nil && ref.Position > q.until.Position {
		return false
	}
	if q.state == queryStateMatchAll {
		return true
	}
	for _, item := range q.items {
		if item.Matches(eventType, eventTags) {
			return true
		}
	}
	return false
}

// CombineWith concatenates the item lists of q and other (match-all has no
// items to contribute and is rejected — combining requires both sides to be
// item-based). When both Until bounds are present they must be equal; when
// exactly one is present, the combination fails; when neither is present
// the result has none.
func (q EventQuery) CombineWith(other EventQuery) (EventQuery, error) {
	if q.state != queryStateItems || other.state != queryStateItems {
		return EventQuery{}, fmt.Errorf("dcbcore: CombineWith requires item-based queries, not match-all")
	}
	combined := make([]EventQueryItem, 0, len(q.items)+len(other.items))
	combined = append(combined, q.items...)
	combined = append(combined, other.items...)

	result := EventQuery{state: queryStateItems, items: combined}
	switch {
	case q.until == nil && other.until == nil:
		return result, nil
	case q.until != nil && other.until != nil:
		if !q.until.Equal(*other.until) {
			return EventQuery{}, fmt.Errorf("dcbcore: CombineWith: mismatched until bounds %v vs %v", *q.until, *other.until)
		}
		result.until = q.until
		return result, nil
	default:
		return EventQuery{}, fmt.Errorf("dcbcore: CombineWith: until present on only one side")
	}
}

// AppendCriteria is the precondition under which an append is allowed: the
// append succeeds iff the last event matching Query has reference equal to
// ExpectedLastReference (absent counts as equal to absent).
type AppendCriteria struct {
	query                 EventQuery
	expectedLastReference *EventReference
}

// NoCriteria returns the unconditional append criterion: (match-none, None).
func NoCriteria() AppendCriteria {
	return AppendCriteria{query: MatchNone()}
}

// NewAppendCriteria builds a criterion requiring the last event matching
// query to equal expected (nil meaning "no such event").
func NewAppendCriteria(query EventQuery, expected *EventReference) AppendCriteria {
	return AppendCriteria{query: query, expectedLastReference: expected}
}

// Query returns the criterion's query.
func (c AppendCriteria) Query() EventQuery { return c.query }

// ExpectedLastReference returns the expected last-matching reference, or
// nil if none is expected.
func (c AppendCriteria) ExpectedLastReference() *EventReference { return c.expectedLastReference }

// IsUnconditional reports whether this is the no-op criterion produced by
// NoCriteria.
func (c AppendCriteria) IsUnconditional() bool {
	return c.query.IsMatchNone() && c.expectedLastReference == nil
}

// Satisfied reports whether actual — the reference of the last stored event
// matching c.Query(), or nil if none — satisfies the criterion.
func (c AppendCriteria) Satisfied(actual *EventReference) bool {
	return EqualRef(c.expectedLastReference, actual)
}
