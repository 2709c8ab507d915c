package dcbcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypesFilterWildcardMatchesAnything(t *testing.T) {
	f := NewEventTypesFilter()
	assert.True(t, f.IsWildcard())
	assert.True(t, f.Matches("CourseCreated"))
	assert.True(t, f.Matches("StudentEnrolled"))
}

func TestEventTypesFilterRestricts(t *testing.T) {
	f := NewEventTypesFilter("CourseCreated", "CourseCapacityChanged")
	assert.False(t, f.IsWildcard())
	assert.True(t, f.Matches("CourseCreated"))
	assert.False(t, f.Matches("StudentEnrolled"))
}

func TestEventTypesFilterExpand(t *testing.T) {
	f := NewEventTypesFilter("CourseCreated")
	expanded := f.Expand(func(t EventType) []EventType {
		if t == "CourseCreated" {
			return []EventType{"CourseCreatedV1", "CourseCreatedLegacy"}
		}
		return nil
	})
	assert.True(t, expanded.Matches("CourseCreated"))
	assert.True(t, expanded.Matches("CourseCreatedV1"))
	assert.True(t, expanded.Matches("CourseCreatedLegacy"))
	assert.False(t, expanded.Matches("Unrelated"))
}

func TestEventTypesFilterExpandIsNoopOnWildcard(t *testing.T) {
	f := NewEventTypesFilter()
	expanded := f.Expand(func(t EventType) []EventType { return []EventType{"Anything"} })
	assert.True(t, expanded.IsWildcard())
}

func TestEventQueryThreeStates(t *testing.T) {
	all := MatchAll()
	none := MatchNone()
	items := ForEvents(NewEventTypesFilter("CourseCreated"), NewTags(NewTag("course", "101")))

	assert.True(t, all.IsMatchAll())
	assert.False(t, all.IsMatchNone())

	assert.False(t, none.IsMatchAll())
	assert.True(t, none.IsMatchNone())

	assert.False(t, items.IsMatchAll())
	assert.False(t, items.IsMatchNone())
}

func TestEventQueryMatchAllMatchesEverything(t *testing.T) {
	q := MatchAll()
	ref := EventReference{ID: NewEventId(), Position: 1}
	assert.True(t, q.Matches("AnyType", NewTags(), ref))
}

func TestEventQueryMatchNoneMatchesNothing(t *testing.T) {
	q := MatchNone()
	ref := EventReference{ID: NewEventId(), Position: 1}
	assert.False(t, q.Matches("AnyType", NewTags(NewTag("x", "y")), ref))
}

func TestEventQueryItemMatching(t *testing.T) {
	q := ForEvents(NewEventTypesFilter("CourseCreated"), NewTags(NewTag("course", "101")))
	ref := EventReference{ID: NewEventId(), Position: 1}

	assert.True(t, q.Matches("CourseCreated", NewTags(NewTag("course", "101"), NewTag("extra", "tag")), ref))
	assert.False(t, q.Matches("CourseCreated", NewTags(NewTag("course", "202")), ref))
	assert.False(t, q.Matches("StudentEnrolled", NewTags(NewTag("course", "101")), ref))
}

func TestEventQueryUntilBound(t *testing.T) {
	boundary := EventReference{ID: NewEventId(), Position: 10}
	q := MatchAll().WithUntil(boundary)

	before := EventReference{ID: NewEventId(), Position: 5}
	atBoundary := EventReference{ID: boundary.ID, Position: 10}
	after := EventReference{ID: NewEventId(), Position: 11}

	assert.True(t, q.Matches("Any", NewTags(), before))
	assert.True(t, q.Matches("Any", NewTags(), atBoundary), "until is inclusive")
	assert.False(t, q.Matches("Any", NewTags(), after))
}

func TestEventQueryUntilIfEarlierTightensOnly(t *testing.T) {
	q := MatchAll()
	far := EventReference{ID: NewEventId(), Position: 100}
	near := EventReference{ID: NewEventId(), Position: 10}

	q = q.UntilIfEarlier(far)
	assert.Equal(t, uint64(100), q.Until().Position)

	q = q.UntilIfEarlier(near)
	assert.Equal(t, uint64(10), q.Until().Position, "tighter bound replaces looser one")

	farther := EventReference{ID: NewEventId(), Position: 200}
	q = q.UntilIfEarlier(farther)
	assert.Equal(t, uint64(10), q.Until().Position, "looser bound never widens existing bound")
}

func TestEventQueryCombineWithRejectsMatchAll(t *testing.T) {
	items := ForEvents(NewEventTypesFilter("CourseCreated"), NewTags())
	_, err := MatchAll().CombineWith(items)
	assert.Error(t, err)

	_, err = items.CombineWith(MatchAll())
	assert.Error(t, err)
}

func TestEventQueryCombineWithMergesItems(t *testing.T) {
	a := ForEvents(NewEventTypesFilter("CourseCreated"), NewTags(NewTag("course", "101")))
	b := ForEvents(NewEventTypesFilter("StudentEnrolled"), NewTags(NewTag("course", "101")))

	combined, err := a.CombineWith(b)
	assert.NoError(t, err)

	ref := EventReference{ID: NewEventId(), Position: 1}
	assert.True(t, combined.Matches("CourseCreated", NewTags(NewTag("course", "101")), ref))
	assert.True(t, combined.Matches("StudentEnrolled", NewTags(NewTag("course", "101")), ref))
	assert.False(t, combined.Matches("Unrelated", NewTags(NewTag("course", "101")), ref))
}

func TestEventQueryCombineWithUntilRules(t *testing.T) {
	r1 := EventReference{ID: NewEventId(), Position: 10}
	r2 := EventReference{ID: NewEventId(), Position: 20}

	withR1 := ForEvents(NewEventTypesFilter("A"), NewTags()).WithUntil(r1)
	alsoWithR1 := ForEvents(NewEventTypesFilter("B"), NewTags()).WithUntil(r1)
	withR2 := ForEvents(NewEventTypesFilter("C"), NewTags()).WithUntil(r2)
	noUntil := ForEvents(NewEventTypesFilter("D"), NewTags())

	combined, err := withR1.CombineWith(alsoWithR1)
	assert.NoError(t, err)
	assert.NotNil(t, combined.Until())

	_, err = withR1.CombineWith(withR2)
	assert.Error(t, err, "mismatched until bounds must fail")

	_, err = withR1.CombineWith(noUntil)
	assert.Error(t, err, "until present on only one side must fail")
}

func TestAppendCriteriaNoCriteriaIsUnconditional(t *testing.T) {
	c := NoCriteria()
	assert.True(t, c.IsUnconditional())
	assert.True(t, c.Satisfied(nil))

	ref := EventReference{ID: NewEventId(), Position: 1}
	assert.False(t, c.Satisfied(&ref))
}

func TestAppendCriteriaSatisfied(t *testing.T) {
	expected := EventReference{ID: NewEventId(), Position: 5}
	c := NewAppendCriteria(ForEvents(NewEventTypesFilter("CourseCreated"), NewTags()), &expected)

	assert.True(t, c.Satisfied(&expected))

	other := EventReference{ID: NewEventId(), Position: 6}
	assert.False(t, c.Satisfied(&other))
	assert.False(t, c.Satisfied(nil))
}
