package frame

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ToArrow builds an Arrow record with one field per column. Column types are
// inferred from the values; all fields are nullable. The caller must Release
// the returned record.
func (f *Frame) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	kinds := make([]kind, len(f.Columns))
	fields := make([]arrow.Field, len(f.Columns))
	for i, c := range f.Columns {
		kinds[i] = f.columnKind(i)
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(kinds[i]), Nullable: true}
	}

	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()

	for _, row := range f.Rows {
		for i := range f.Columns {
			if err := appendArrow(b.Field(i), kinds[i], normalize(row[i])); err != nil {
				return nil, fmt.Errorf("column %q: %w", f.Columns[i].Name, err)
			}
		}
	}

	return b.NewRecord(), nil
}

func arrowType(k kind) arrow.DataType {
	switch k {
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindBytes:
		return arrow.BinaryTypes.Binary
	case kindTime:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func appendArrow(b array.Builder, k kind, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch k {
	case kindBool:
		b.(*array.BooleanBuilder).Append(v.(bool))
	case kindInt:
		b.(*array.Int64Builder).Append(v.(int64))
	case kindFloat:
		switch x := v.(type) {
		case int64:
			b.(*array.Float64Builder).Append(float64(x))
		case float64:
			b.(*array.Float64Builder).Append(x)
		default:
			return fmt.Errorf("unexpected %T in float column", v)
		}
	case kindBytes:
		b.(*array.BinaryBuilder).Append(v.([]byte))
	case kindTime:
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	default:
		b.(*array.StringBuilder).Append(toString(v))
	}
	return nil
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
