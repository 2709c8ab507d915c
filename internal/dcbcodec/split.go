package dcbcodec

// Split partitions a decoded JSON object (map[string]any, as produced by
// encoding/json.Unmarshal into an any) into its immutable and erasable
// trees according to schema. Fields with no matching descriptor are
// treated as non-erasable.
func Split(schema Schema, obj map[string]any) (immutable map[string]any, erasable map[string]any) {
	fields := byKey(schema.Fields)
	immutable = make(map[string]any)
	erasable = make(map[string]any)

	for k, v := range obj {
		desc := describeKey(fields, normalizeKey(k))
		switch desc.Erasability {
		case FullyErasable:
			erasable[k] = v
		case NonErasable:
			immutable[k] = v
		case PartlyErasable:
			child, ok := v.(map[string]any)
			if !ok {
				// Not an object despite being annotated PartlyErasable:
				// treat conservatively as non-erasable rather than guess.
				immutable[k] = v
				continue
			}
			childSchema := Schema{Type: schema.Type + "." + k, Fields: desc.Children}
			imm, era := Split(childSchema, child)
			if len(imm) > 0 {
				immutable[k] = imm
			}
			if len(era) > 0 {
				erasable[k] = era
			}
		}
	}

	if len(erasable) == 0 {
		return immutable, nil
	}
	return immutable, erasable
}

// Merge reconstructs the domain object's JSON tree from its immutable half
// and, optionally, its erasable half. When erasable is nil, every erasable
// leaf is simply absent from the result — partly-erasable containers keep
// their non-erasable fields. The merge is a structural deep merge: erasable
// keys overwrite or add to immutable keys at the same path; it is
// deterministic, and commutative wherever the two trees don't collide on a
// key.
func Merge(schema Schema, immutable, erasable map[string]any) map[string]any {
	result := make(map[string]any, len(immutable))
	for k, v := range immutable {
		result[k] = v
	}
	if erasable == nil {
		return result
	}

	fields := byKey(schema.Fields)
	for k, v := range erasable {
		desc := describeKey(fields, normalizeKey(k))
		if desc.Erasability == PartlyErasable {
			childErasable, _ := v.(map[string]any)
			var childImmutable map[string]any
			if existing, ok := result[k]; ok {
				childImmutable, _ = existing.(map[string]any)
			}
			childSchema := Schema{Type: schema.Type + "." + k, Fields: desc.Children}
			result[k] = Merge(childSchema, childImmutable, childErasable)
			continue
		}
		result[k] = v
	}
	return result
}
