package dcbcodec

import (
	"encoding/json"
	"fmt"
)

// Codec is the symmetric serialize/deserialize contract: domain objects
// (Go values, typed or raw maps) to and from the (immutable, erasable)
// byte-pair a StoredEvent persists.
type Codec interface {
	Serialize(domainObject any) (eventType string, immutableBytes []byte, erasableBytes []byte, err error)
	Deserialize(eventType string, immutableBytes, erasableBytes []byte) (any, error)
	// ExpandTypeFilter widens a set of current type names to include every
	// legacy type that up-casts onto one of them.
	ExpandTypeFilter(types []string) []string
}

// TypedCodec maps event types to statically-known Go types via per-type
// marshal/unmarshal functions registered alongside their schema.
type TypedCodec struct {
	registry *Registry
	marshal  map[string]func(any) (map[string]any, error)
	build    map[string]func(map[string]any) (any, error)
}

// NewTypedCodec builds a typed codec backed by registry.
func NewTypedCodec(registry *Registry) *TypedCodec {
	return &TypedCodec{
		registry: registry,
		marshal:  make(map[string]func(any) (map[string]any, error)),
		build:    make(map[string]func(map[string]any) (any, error)),
	}
}

// RegisterType wires a Go type's JSON shape into the codec under
// eventType. marshalFn converts a domain value to its JSON object form;
// buildFn performs the reverse.
func (c *TypedCodec) RegisterType(eventType string, marshalFn func(any) (map[string]any, error), buildFn func(map[string]any) (any, error)) {
	c.marshal[eventType] = marshalFn
	c.build[eventType] = buildFn
}

// Serialize implements Codec. Legacy types are rejected: appends of a
// deprecated type are never accepted, only reads may observe them.
func (c *TypedCodec) Serialize(domainObject any) (string, []byte, []byte, error) {
	typed, ok := domainObject.(typedValue)
	if !ok {
		return "", nil, nil, fmt.Errorf("dcbcodec: value does not implement typedValue")
	}
	eventType := typed.EventType()
	if c.registry.IsLegacy(eventType) {
		return "", nil, nil, fmt.Errorf("dcbcodec: serialize rejected: %q is a legacy type", eventType)
	}
	marshalFn, ok := c.marshal[eventType]
	if !ok {
		return "", nil, nil, fmt.Errorf("dcbcodec: no marshaler registered for type %q", eventType)
	}
	obj, err := marshalFn(domainObject)
	if err != nil {
		return "", nil, nil, fmt.Errorf("dcbcodec: serialize %q: %w", eventType, err)
	}

	schema, hasSchema := c.registry.schemas[eventType]
	if !hasSchema {
		schema = Schema{Type: eventType}
	}
	immutable, erasable := Split(schema, obj)

	immutableBytes, err := json.Marshal(immutable)
	if err != nil {
		return "", nil, nil, fmt.Errorf("dcbcodec: encode immutable half of %q: %w", eventType, err)
	}
	var erasableBytes []byte
	if erasable != nil {
		erasableBytes, err = json.Marshal(erasable)
		if err != nil {
			return "", nil, nil, fmt.Errorf("dcbcodec: encode erasable half of %q: %w", eventType, err)
		}
	}
	return eventType, immutableBytes, erasableBytes, nil
}

// Deserialize implements Codec: decodes the stored bytes, merges them,
// up-casts if eventType is legacy, and builds the current-typed domain
// value. Missing type mapping is a non-retryable decode error naming the
// known types.
func (c *TypedCodec) Deserialize(eventType string, immutableBytes, erasableBytes []byte) (any, error) {
	var immutable map[string]any
	if len(immutableBytes) > 0 {
		if err := json.Unmarshal(immutableBytes, &immutable); err != nil {
			return nil, fmt.Errorf("dcbcodec: decode immutable half of %q: %w", eventType, err)
		}
	}
	var erasable map[string]any
	if len(erasableBytes) > 0 {
		if err := json.Unmarshal(erasableBytes, &erasable); err != nil {
			return nil, fmt.Errorf("dcbcodec: decode erasable half of %q: %w", eventType, err)
		}
	}

	resolvedType := eventType
	if uc, legacy := c.registry.upcasters[eventType]; legacy {
		schema, hasSchema := c.registry.schemas[eventType]
		if !hasSchema {
			schema = Schema{Type: eventType}
		}
		merged := Merge(schema, immutable, erasable)
		immutable = uc.fn(merged)
		erasable = nil
		resolvedType = uc.targetType
	} else {
		schema, hasSchema := c.registry.schemas[eventType]
		if !hasSchema {
			schema = Schema{Type: eventType}
		}
		immutable = Merge(schema, immutable, erasable)
		erasable = nil
	}

	buildFn, ok := c.build[resolvedType]
	if !ok {
		return nil, fmt.Errorf("dcbcodec: no type mapping for %q (known types: %v)", resolvedType, c.registry.KnownTypes())
	}
	return buildFn(immutable)
}

// ExpandTypeFilter widens types to include every legacy predecessor of
// each current type named.
func (c *TypedCodec) ExpandTypeFilter(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range types {
		add(t)
		for _, legacy := range c.registry.LegacyTypesOf(t) {
			add(legacy)
		}
	}
	return out
}

// typedValue is implemented by domain objects that know their own event
// type name, so TypedCodec.Serialize can look up the right marshaler.
type typedValue interface {
	EventType() string
}

// RawCodec preserves payloads as structured JSON values without binding to
// a static Go type. Up-cast expansion is identity in raw mode — there are
// no type-to-Go-struct bindings to migrate. Serialize of a legacy-annotated
// type is rejected; Deserialize accepts any type name, returning a raw event
// value that holds the type name and the merged map[string]any.
type RawCodec struct {
	registry *Registry
}

// NewRawCodec builds a raw-mode codec backed by registry (used only for
// schema descriptors, not type bindings).
func NewRawCodec(registry *Registry) *RawCodec {
	return &RawCodec{registry: registry}
}

// rawEvent is the shape RawCodec.Serialize accepts: an explicit type name
// plus the JSON object to split.
type rawEvent struct {
	Type string
	Data map[string]any
}

// NewRawEvent builds the input value RawCodec.Serialize expects.
func NewRawEvent(eventType string, data map[string]any) any {
	return rawEvent{Type: eventType, Data: data}
}

func (c *RawCodec) Serialize(domainObject any) (string, []byte, []byte, error) {
	re, ok := domainObject.(rawEvent)
	if !ok {
		return "", nil, nil, fmt.Errorf("dcbcodec: raw codec requires a value built with NewRawEvent")
	}
	if c.registry.IsLegacy(re.Type) {
		return "", nil, nil, fmt.Errorf("dcbcodec: serialize rejected: %q is a legacy type", re.Type)
	}
	schema, hasSchema := c.registry.schemas[re.Type]
	if !hasSchema {
		schema = Schema{Type: re.Type}
	}
	immutable, erasable := Split(schema, re.Data)

	immutableBytes, err := json.Marshal(immutable)
	if err != nil {
		return "", nil, nil, fmt.Errorf("dcbcodec: encode immutable half of %q: %w", re.Type, err)
	}
	var erasableBytes []byte
	if erasable != nil {
		erasableBytes, err = json.Marshal(erasable)
		if err != nil {
			return "", nil, nil, fmt.Errorf("dcbcodec: encode erasable half of %q: %w", re.Type, err)
		}
	}
	return re.Type, immutableBytes, erasableBytes, nil
}

func (c *RawCodec) Deserialize(eventType string, immutableBytes, erasableBytes []byte) (any, error) {
	var immutable map[string]any
	if len(immutableBytes) > 0 {
		if err := json.Unmarshal(immutableBytes, &immutable); err != nil {
			return nil, fmt.Errorf("dcbcodec: decode immutable half of %q: %w", eventType, err)
		}
	}
	var erasable map[string]any
	if len(erasableBytes) > 0 {
		if err := json.Unmarshal(erasableBytes, &erasable); err != nil {
			return nil, fmt.Errorf("dcbcodec: decode erasable half of %q: %w", eventType, err)
		}
	}
	schema, hasSchema := c.registry.schemas[eventType]
	if !hasSchema {
		schema = Schema{Type: eventType}
	}
	return rawEvent{Type: eventType, Data: Merge(schema, immutable, erasable)}, nil
}

// ExpandTypeFilter is identity in raw mode: there is no type-to-Go-struct
// binding to migrate, so legacy names already pass straight through.
func (c *RawCodec) ExpandTypeFilter(types []string) []string {
	out := make([]string, len(types))
	copy(out, types)
	return out
}
