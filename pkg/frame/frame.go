// Package frame provides Frame, the tabular value every query result is
// converted to before it is rendered or exported.
//
// A Frame is row-major: Columns describes the schema and each entry of Rows
// holds one value per column. Values keep whatever Go type the driver
// produced; inference to a concrete column kind happens only when a frame is
// exported (Arrow, Avro).
package frame

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/schaumb/streamlit/pkg/errors"
)

// Column describes one column of a frame.
type Column struct {
	// Name is the column name as reported by the source
	Name string `json:"name"`
	// Type is the source type name (e.g. "INTEGER", "TEXT"); informational only
	Type string `json:"type,omitempty"`
}

// Frame is a tabular value.
type Frame struct {
	Columns []Column
	Rows    [][]any
}

// New creates an empty frame with the given columns.
func New(columns ...Column) *Frame {
	return &Frame{Columns: columns}
}

// FromNames creates an empty frame with untyped columns.
func FromNames(names ...string) *Frame {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	return New(cols...)
}

// Append adds one row. The row must have exactly one value per column.
func (f *Frame) Append(row ...any) error {
	if len(row) != len(f.Columns) {
		return errors.Newf(errors.ErrorTypeData, "row has %d values, frame has %d columns", len(row), len(f.Columns))
	}
	f.Rows = append(f.Rows, row)
	return nil
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return len(f.Rows) }

// NumCols returns the number of columns.
func (f *Frame) NumCols() int { return len(f.Columns) }

// ColumnNames returns the column names in order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the index of the named column or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the value at (row, col).
func (f *Frame) Value(row, col int) (any, error) {
	if row < 0 || row >= len(f.Rows) {
		return nil, errors.Newf(errors.ErrorTypeData, "row %d out of range [0,%d)", row, len(f.Rows))
	}
	if col < 0 || col >= len(f.Columns) {
		return nil, errors.Newf(errors.ErrorTypeData, "column %d out of range [0,%d)", col, len(f.Columns))
	}
	return f.Rows[row][col], nil
}

// Records returns the rows as column-name keyed maps.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for j, c := range f.Columns {
			rec[c.Name] = row[j]
		}
		out[i] = rec
	}
	return out
}

// MarshalJSON encodes the frame as an array of records.
func (f *Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Records())
}

// String returns a short description of the frame shape.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame[%d rows x %d cols]", f.NumRows(), f.NumCols())
}

// kind is the inferred storage kind of a column.
type kind int

const (
	kindNull kind = iota
	kindBool
	kindInt
	kindFloat
	kindString
	kindBytes
	kindTime
)

// normalize folds driver values into a small set of Go types:
// bool, int64, float64, string, []byte, time.Time, or nil.
// Anything else is formatted with %v.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string, []byte, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

func kindOf(v any) kind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case int64:
		return kindInt
	case float64:
		return kindFloat
	case []byte:
		return kindBytes
	case time.Time:
		return kindTime
	default:
		return kindString
	}
}

// columnKind infers the kind of column col. Mixed int/float columns widen to
// float; any other mix falls back to string.
func (f *Frame) columnKind(col int) kind {
	k := kindNull
	for _, row := range f.Rows {
		vk := kindOf(normalize(row[col]))
		switch {
		case vk == kindNull || vk == k:
		case k == kindNull:
			k = vk
		case (k == kindInt && vk == kindFloat) || (k == kindFloat && vk == kindInt):
			k = kindFloat
		default:
			return kindString
		}
	}
	if k == kindNull {
		return kindString
	}
	return k
}
