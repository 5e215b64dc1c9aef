package widget

import (
	"fmt"
	"sort"
)

// DataSchema is the optional shape contract for data pushed through the
// cache boundary. It is deliberately flat: a map of field name to spec.
type DataSchema struct {
	Fields map[string]FieldSpec `json:"fields"`
}

// FieldSpec constrains one field of the payload.
type FieldSpec struct {
	// Type is one of: string, number, boolean, object, array, any.
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// FieldError is one structured schema violation, addressable by field name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CheckData validates a payload against the schema and returns one error
// per violating field. A nil schema accepts everything.
func (s *DataSchema) CheckData(data map[string]any) []FieldError {
	if s == nil || len(s.Fields) == 0 {
		return nil
	}

	var fieldErrs []FieldError

	// Deterministic order so repeated calls produce stable error lists.
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := s.Fields[name]
		value, present := data[name]

		if !present || value == nil {
			if spec.Required {
				fieldErrs = append(fieldErrs, FieldError{
					Field:   name,
					Message: "required field is missing",
				})
			}
			continue
		}

		if !typeMatches(spec.Type, value) {
			fieldErrs = append(fieldErrs, FieldError{
				Field:   name,
				Message: fmt.Sprintf("expected %s, got %s", spec.Type, typeName(value)),
			})
		}
	}

	return fieldErrs
}

func typeMatches(want string, value any) bool {
	switch want {
	case "", "any":
		return true
	default:
		return typeName(value) == want
	}
}

func typeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		// JSON decoding yields float64; other widths appear when callers
		// hand in Go-native maps.
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}
