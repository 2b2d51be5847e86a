package domain

import "fmt"

// Metadata is an open, caller-defined structured record attached to a
// document. It is validated against a caller-registered Schema at the edges:
// on insert and when rows are reconstructed from storage.
type Metadata map[string]any

// FieldType enumerates the value types a metadata field may hold.
type FieldType string

// Supported metadata field types.
const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeFloat  FieldType = "float"
	FieldTypeBool   FieldType = "bool"
)

// Field describes one metadata field.
type Field struct {
	// Type is the expected value type.
	Type FieldType

	// Required rejects records missing this field.
	Required bool
}

// Schema maps metadata field names to their descriptions.
// A Schema is immutable after registration with a store or pipeline.
type Schema map[string]Field

// Validate checks md against the schema. On failure it returns a
// *ValidationError listing every violated field, not just the first.
func (s Schema) Validate(md Metadata) error {
	violations := make(map[string]string)

	for name, field := range s {
		value, ok := md[name]
		if !ok || value == nil {
			if field.Required {
				violations[name] = "required field is missing"
			}
			continue
		}
		if reason := checkType(field.Type, value); reason != "" {
			violations[name] = reason
		}
	}

	for name := range md {
		if _, ok := s[name]; !ok {
			violations[name] = "field is not declared in the schema"
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Fields: violations}
	}
	return nil
}

// Normalise coerces md's values to the schema's canonical Go types
// (int64 → int, float64 → int for integral fields, etc). Storage drivers
// return wider types than callers stored; normalising keeps metadata
// round-trips lossless. Returns a new map; md is not modified.
func (s Schema) Normalise(md Metadata) (Metadata, error) {
	out := make(Metadata, len(md))
	violations := make(map[string]string)

	for name, value := range md {
		if value == nil {
			// A NULL column read back from storage: the optional field was
			// absent on insert. Required fields are caught below.
			continue
		}
		field, ok := s[name]
		if !ok {
			violations[name] = "field is not declared in the schema"
			continue
		}
		coerced, reason := coerce(field.Type, value)
		if reason != "" {
			violations[name] = reason
			continue
		}
		out[name] = coerced
	}

	for name, field := range s {
		if field.Required {
			if _, ok := out[name]; !ok {
				violations[name] = "required field is missing"
			}
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Fields: violations}
	}
	return out, nil
}

// checkType reports why value does not conform to t, or "" if it does.
func checkType(t FieldType, value any) string {
	if _, reason := coerce(t, value); reason != "" {
		return reason
	}
	return ""
}

// coerce converts value to the canonical Go type for t.
// Returns the converted value, or a non-empty rejection reason.
func coerce(t FieldType, value any) (any, string) {
	switch t {
	case FieldTypeString:
		if v, ok := value.(string); ok {
			return v, ""
		}
	case FieldTypeInt:
		switch v := value.(type) {
		case int:
			return v, ""
		case int32:
			return int(v), ""
		case int64:
			return int(v), ""
		case float64:
			if v == float64(int(v)) {
				return int(v), ""
			}
		}
	case FieldTypeFloat:
		switch v := value.(type) {
		case float64:
			return v, ""
		case float32:
			return float64(v), ""
		case int:
			return float64(v), ""
		case int64:
			return float64(v), ""
		}
	case FieldTypeBool:
		switch v := value.(type) {
		case bool:
			return v, ""
		case int64:
			// SQLite stores booleans as integers.
			return v != 0, ""
		}
	default:
		return nil, fmt.Sprintf("unsupported field type %q", t)
	}
	return nil, fmt.Sprintf("expected %s, got %T", t, value)
}
