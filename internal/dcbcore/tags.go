package dcbcore

import (
	"sort"
	"strings"
)

// Tag is a key-value pair attached to an event. Either component may be
// absent; canonical string form is "key:value", "key" (absent value), or
// ":value" (absent key). A Tag whose both components are absent is never
// materialized — ParseTag returns ok=false for it.
type Tag struct {
	key      string
	value    string
	hasKey   bool
	hasValue bool
}

// NewTag builds a Tag from a present key and value — the common case.
func NewTag(key, value string) Tag {
	return Tag{key: key, value: value, hasKey: true, hasValue: true}
}

// NewTagKeyOnly builds a Tag with an absent value.
func NewTagKeyOnly(key string) Tag {
	return Tag{key: key, hasKey: true}
}

// NewTagValueOnly builds a Tag with an absent key.
func NewTagValueOnly(value string) Tag {
	return Tag{value: value, hasValue: true}
}

// ParseTag parses the canonical "key:value" form. The empty string, ":",
// and whitespace-only strings all yield ok=false (absence).
func ParseTag(s string) (tag Tag, ok bool) {
	key, value, hasKey, hasValue := splitTagString(s)
	if !hasKey && !hasValue {
		return Tag{}, false
	}
	return Tag{key: key, value: value, hasKey: hasKey, hasValue: hasValue}, true
}

// Key returns the key component and whether it is present.
func (t Tag) Key() (string, bool) { return t.key, t.hasKey }

// Value returns the value component and whether it is present.
func (t Tag) Value() (string, bool) { return t.value, t.hasValue }

// String renders the canonical form.
func (t Tag) String() string {
	var b strings.Builder
	if t.hasKey {
		b.WriteString(t.key)
	}
	if t.hasValue {
		b.WriteByte(':')
		b.WriteString(t.value)
	}
	return b.String()
}

// Equal reports key+value value-equality.
func (t Tag) Equal(other Tag) bool {
	return t.hasKey == other.hasKey && t.key == other.key &&
		t.hasValue == other.hasValue && t.value == other.value
}

// IsZero reports whether both components are absent.
func (t Tag) IsZero() bool { return !t.hasKey && !t.hasValue }

// Tags is a mathematical set of Tag: duplicates collapse, insertion order
// is irrelevant.
type Tags struct {
	byCanonical map[string]Tag
}

// NewTags builds a Tags set from the given tags, dropping duplicates.
func NewTags(tags ...Tag) Tags {
	t := Tags{byCanonical: make(map[string]Tag, len(tags))}
	for _, tag := range tags {
		if tag.IsZero() {
			continue
		}
		t.byCanonical[tag.String()] = tag
	}
	return t
}

// ParseTags accepts a sequence of canonical-form strings, dropping any that
// parse to absence.
func ParseTags(strs ...string) Tags {
	t := Tags{byCanonical: make(map[string]Tag, len(strs))}
	for _, s := range strs {
		if tag, ok := ParseTag(s); ok {
			t.byCanonical[tag.String()] = tag
		}
	}
	return t
}

// Len returns the number of distinct tags.
func (t Tags) Len() int { return len(t.byCanonical) }

// Contains reports whether tag is a member of the set.
func (t Tags) Contains(tag Tag) bool {
	_, ok := t.byCanonical[tag.String()]
	return ok
}

// ContainsAll is the subset test: does t contain every tag in other?
func (t Tags) ContainsAll(other Tags) bool {
	for k := range other.byCanonical {
		if _, ok := t.byCanonical[k]; !ok {
			return false
		}
	}
	return true
}

// Slice returns the tags in sorted canonical order, for deterministic
// iteration and serialization.
func (t Tags) Slice() []Tag {
	out := make([]Tag, 0, len(t.byCanonical))
	for _, tag := range t.byCanonical {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ToArray renders the set as sorted canonical strings, the form persisted
// in a text[] column.
func (t Tags) ToArray() []string {
	slice := t.Slice()
	out := make([]string, len(slice))
	for i, tag := range slice {
		out[i] = tag.String()
	}
	return out
}

// TagsFromArray reconstructs a Tags set from a persisted text[] array.
func TagsFromArray(arr []string) Tags {
	return ParseTags(arr...)
}

// Union returns a new Tags set containing the members of both.
func (t Tags) Union(other Tags) Tags {
	merged := make(map[string]Tag, len(t.byCanonical)+len(other.byCanonical))
	for k, v := range t.byCanonical {
		merged[k] = v
	}
	for k, v := range other.byCanonical {
		merged[k] = v
	}
	return Tags{byCanonical: merged}
}
