package util

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError names the first parameter that failed validation.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Field, e.Message)
}

// CreateSchema derives an object schema from the exported fields of a
// struct. Field names follow the json tag, a "description" tag is copied,
// and fields that are neither pointers nor omitempty are required.
func CreateSchema(v any) map[string]any {
	props := map[string]any{}
	schema := map[string]any{"type": "object", "properties": props}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string

	for f := range fieldsOf(t) {
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}

		if name == "" {
			name = f.Name
		}

		prop := map[string]any{"type": jsonType(f.Type)}
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}

		props[name] = prop

		if f.Type.Kind() != reflect.Pointer && !slices.Contains(strings.Split(opts, ","), "omitempty") {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func fieldsOf(t reflect.Type) func(yield func(reflect.StructField) bool) {
	return func(yield func(reflect.StructField) bool) {
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() && !yield(f) {
				return
			}
		}
	}
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Pointer:
		return jsonType(t.Elem())
	default:
		return "string"
	}
}

// ValidateParameters checks params against the subset of JSON schema that
// actions declare: required names, property types and enums. Unknown
// params pass.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range requiredFields(schema) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)

	for name, value := range params {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}

		want, _ := prop["type"].(string)
		if !hasType(value, want) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("expected type %s, got %T", want, value)}
		}

		if enum, ok := prop["enum"].([]any); ok && !slices.Contains(enum, value) {
			return &ValidationError{Field: name, Value: value, Message: fmt.Sprintf("value must be one of %v", enum)}
		}
	}

	return nil
}

// requiredFields accepts both []string (CreateSchema) and []any (decoded JSON).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

// hasType reports whether a decoded JSON value fits a schema type. Numbers
// arrive as float64, so integral floats count as integers. nil and unknown
// types always fit.
func hasType(v any, want string) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)

	switch want {
	case "string":
		return rv.Kind() == reflect.String
	case "integer":
		if f, ok := v.(float64); ok {
			return f == float64(int64(f))
		}

		return rv.CanInt() || rv.CanUint()
	case "number":
		return rv.CanInt() || rv.CanUint() || rv.CanFloat()
	case "boolean":
		return rv.Kind() == reflect.Bool
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
