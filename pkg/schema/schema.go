package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInt       FieldType = "int"
	TypeFloat     FieldType = "float"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
)

// Field declares one column of a tabular dataset.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the structural contract a dataset must satisfy. The same schema
// validates development fixture files and production API responses, so
// swapping the extraction source never changes downstream stage behavior.
type Schema struct {
	Name   string
	Fields []Field
}

// Columns returns the declared column names in order.
func (s Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Field returns the declared field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValidateHeader checks that header contains exactly the declared columns.
// Missing required columns and undeclared extra columns are both rejected.
func (s Schema) ValidateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		if _, ok := s.Field(col); !ok {
			return fmt.Errorf("schema %s: undeclared column %q", s.Name, col)
		}
		if seen[col] {
			return fmt.Errorf("schema %s: duplicate column %q", s.Name, col)
		}
		seen[col] = true
	}
	for _, f := range s.Fields {
		if f.Required && !seen[f.Name] {
			return fmt.Errorf("schema %s: missing required column %q", s.Name, f.Name)
		}
	}
	return nil
}

// ParseValue converts a raw cell into the field's typed value. An empty cell
// is nil for optional fields and an error for required ones.
func (f Field) ParseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if f.Required {
			return nil, fmt.Errorf("field %q: required value is empty", f.Name)
		}
		return nil, nil
	}
	switch f.Type {
	case TypeString:
		return raw, nil
	case TypeInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not an int", f.Name, raw)
		}
		return v, nil
	case TypeFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not a float", f.Name, raw)
		}
		return v, nil
	case TypeBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %q is not a bool", f.Name, raw)
		}
		return v, nil
	case TypeTimestamp:
		t, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
}

// FormatValue renders a typed value back to its canonical text form.
func (f Field) FormatValue(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a timestamp", raw)
}
