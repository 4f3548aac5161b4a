package dataset

import (
	"fmt"
	"time"

	"github.com/meridianlabs/flowline/pkg/schema"
)

// Row holds one record's typed values keyed by column name. Optional fields
// that were empty in the source are absent or nil.
type Row map[string]any

// Dataset is a schema-conformant tabular value passed between pipeline
// stages. Stages produce a new Dataset rather than mutating their input, so
// a stage never observes changes made by a later one.
type Dataset struct {
	Schema schema.Schema
	Rows   []Row
}

// New returns an empty dataset for the given schema.
func New(s schema.Schema) Dataset {
	return Dataset{Schema: s}
}

// FromRecords builds a dataset by parsing raw string records against the
// schema. The header must satisfy the schema exactly; every cell must parse
// as its declared type. The first failure aborts with row context.
func FromRecords(s schema.Schema, header []string, records [][]string) (Dataset, error) {
	if err := s.ValidateHeader(header); err != nil {
		return Dataset{}, err
	}
	d := Dataset{Schema: s, Rows: make([]Row, 0, len(records))}
	for i, rec := range records {
		if len(rec) != len(header) {
			return Dataset{}, fmt.Errorf("row %d: has %d values, header has %d columns", i+1, len(rec), len(header))
		}
		row := make(Row, len(header))
		for j, col := range header {
			field, _ := s.Field(col)
			v, err := field.ParseValue(rec[j])
			if err != nil {
				return Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
			}
			if v != nil {
				row[col] = v
			}
		}
		// Required columns absent from the header would already have failed
		// header validation, so the row is complete here.
		d.Rows = append(d.Rows, row)
	}
	return d, nil
}

// Validate re-checks every row against the dataset's schema. Used at the
// load boundary to guarantee no stage broke the contract.
func (d Dataset) Validate() error {
	for i, row := range d.Rows {
		for _, f := range d.Schema.Fields {
			v, ok := row[f.Name]
			if !ok || v == nil {
				if f.Required {
					return fmt.Errorf("row %d: missing required field %q", i+1, f.Name)
				}
				continue
			}
			if err := checkType(f, v); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		for col := range row {
			if _, ok := d.Schema.Field(col); !ok {
				return fmt.Errorf("row %d: undeclared field %q", i+1, col)
			}
		}
	}
	return nil
}

// Clone returns a deep copy. Each stage receives its own rows, preserving
// value semantics between stages.
func (d Dataset) Clone() Dataset {
	out := Dataset{Schema: d.Schema, Rows: make([]Row, len(d.Rows))}
	for i, row := range d.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// NumRows returns the number of rows.
func (d Dataset) NumRows() int {
	return len(d.Rows)
}

func checkType(f schema.Field, v any) error {
	ok := false
	switch f.Type {
	case schema.TypeString:
		_, ok = v.(string)
	case schema.TypeInt:
		_, ok = v.(int64)
	case schema.TypeFloat:
		_, ok = v.(float64)
	case schema.TypeBool:
		_, ok = v.(bool)
	case schema.TypeTimestamp:
		_, ok = v.(time.Time)
	}
	if !ok {
		return fmt.Errorf("field %q: value %v is not a %s", f.Name, v, f.Type)
	}
	return nil
}

// String returns the string value of a column.
func (r Row) String(col string) (string, error) {
	v, ok := r[col].(string)
	if !ok {
		return "", fmt.Errorf("field %q: not a string", col)
	}
	return v, nil
}

// Int returns the int value of a column.
func (r Row) Int(col string) (int64, error) {
	v, ok := r[col].(int64)
	if !ok {
		return 0, fmt.Errorf("field %q: not an int", col)
	}
	return v, nil
}

// Float returns the float value of a column.
func (r Row) Float(col string) (float64, error) {
	v, ok := r[col].(float64)
	if !ok {
		return 0, fmt.Errorf("field %q: not a float", col)
	}
	return v, nil
}

// Bool returns the bool value of a column.
func (r Row) Bool(col string) (bool, error) {
	v, ok := r[col].(bool)
	if !ok {
		return false, fmt.Errorf("field %q: not a bool", col)
	}
	return v, nil
}

// Time returns the timestamp value of a column.
func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col].(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q: not a timestamp", col)
	}
	return v, nil
}
