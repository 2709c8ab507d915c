// Package dcbcodec implements the event payload codec: splitting a domain
// object into immutable and erasable JSON trees, merging them back on read,
// and up-casting legacy types to their current equivalents.
//
// There is no library in the retrieved pack for schema-annotation-driven
// JSON splitting, so this package works directly on
// encoding/json-decoded map[string]any trees, the same representation the
// teacher's event payloads already travel as ([]byte holding JSON, decoded
// ad hoc by callers — see append_events.go's json.Marshal/Unmarshal use).
package dcbcodec

import "strings"

// Erasability classifies how a schema leaf participates in the
// immutable/erasable split.
type Erasability int

const (
	// NonErasable fields live only in the immutable tree.
	NonErasable Erasability = iota
	// FullyErasable fields live only in the erasable tree.
	FullyErasable
	// PartlyErasable fields are nested objects that contribute to both
	// trees according to their own child descriptors.
	PartlyErasable
)

// FieldDescriptor describes one field of a schema: its JSON key, its
// erasability, and (for PartlyErasable fields) the descriptors of its own
// children.
type FieldDescriptor struct {
	Key         string
	Erasability Erasability
	Children    []FieldDescriptor
}

// Schema is a named tree of field descriptors for one event type.
type Schema struct {
	Type   string
	Fields []FieldDescriptor
}

// byKey indexes a descriptor list for lookup during split/merge.
func byKey(fields []FieldDescriptor) map[string]FieldDescriptor {
	m := make(map[string]FieldDescriptor, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}

// Registry holds the schema descriptors and up-caster chain for every known
// event type, keyed by type name.
type Registry struct {
	schemas   map[string]Schema
	upcasters map[string]upcaster
	legacyOf  map[string][]string // current type -> legacy types mapped to it
}

type upcaster struct {
	targetType string
	fn         func(legacy map[string]any) map[string]any
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:   make(map[string]Schema),
		upcasters: make(map[string]upcaster),
		legacyOf:  make(map[string][]string),
	}
}

// RegisterSchema associates a field-erasability descriptor with a current
// (non-legacy) event type.
func (r *Registry) RegisterSchema(s Schema) {
	r.schemas[s.Type] = s
}

// RegisterUpcaster registers legacyType as an up-castable predecessor of
// targetType, via fn, which maps a decoded legacy JSON object to the shape
// of the current type.
func (r *Registry) RegisterUpcaster(legacyType, targetType string, fn func(legacy map[string]any) map[string]any) {
	r.upcasters[legacyType] = upcaster{targetType: targetType, fn: fn}
	r.legacyOf[targetType] = append(r.legacyOf[targetType], legacyType)
}

// LegacyTypesOf returns the legacy type names that up-cast onto
// currentType, used to expand a type filter before querying storage.
func (r *Registry) LegacyTypesOf(currentType string) []string {
	return r.legacyOf[currentType]
}

// IsLegacy reports whether typeName has a registered up-caster.
func (r *Registry) IsLegacy(typeName string) bool {
	_, ok := r.upcasters[typeName]
	return ok
}

// KnownTypes returns every type name the registry can decode: all schema
// types plus all legacy types.
func (r *Registry) KnownTypes() []string {
	seen := make(map[string]struct{}, len(r.schemas)+len(r.upcasters))
	out := make([]string, 0, len(r.schemas)+len(r.upcasters))
	for t := range r.schemas {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for t := range r.upcasters {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// describeKey returns the descriptor matching a dotted path segment, or the
// zero descriptor (NonErasable, no children) if unknown — unannotated
// fields default to non-erasable.
func describeKey(fields map[string]FieldDescriptor, key string) FieldDescriptor {
	if d, ok := fields[key]; ok {
		return d
	}
	return FieldDescriptor{Key: key, Erasability: NonErasable}
}

// normalizeKey strips array-index suffixes used by nested schema paths;
// descriptors are keyed by field name, not by path.
func normalizeKey(k string) string {
	if i := strings.IndexByte(k, '['); i >= 0 {
		return k[:i]
	}
	return k
}
