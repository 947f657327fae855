package frame

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaumb/streamlit/pkg/errors"
)

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f := New(
		Column{Name: "id", Type: "INTEGER"},
		Column{Name: "name", Type: "TEXT"},
		Column{Name: "score", Type: "REAL"},
		Column{Name: "active", Type: "BOOLEAN"},
		Column{Name: "seen", Type: "TIMESTAMP"},
	)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.Append(1, "ada", 9.5, true, ts))
	require.NoError(t, f.Append(int32(2), "bob", int64(7), false, nil))
	require.NoError(t, f.Append(int64(3), nil, nil, nil, ts))
	return f
}

func TestFrame_Append(t *testing.T) {
	f := FromNames("a", "b")
	require.NoError(t, f.Append(1, 2))

	err := f.Append(1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, 1, f.NumRows())
	assert.Equal(t, 2, f.NumCols())
}

func TestFrame_Accessors(t *testing.T) {
	f := sampleFrame(t)

	assert.Equal(t, []string{"id", "name", "score", "active", "seen"}, f.ColumnNames())
	assert.Equal(t, 2, f.ColumnIndex("score"))
	assert.Equal(t, -1, f.ColumnIndex("missing"))

	v, err := f.Value(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", v)

	_, err = f.Value(5, 0)
	assert.Error(t, err)
	_, err = f.Value(0, 9)
	assert.Error(t, err)

	assert.Equal(t, "Frame[3 rows x 5 cols]", f.String())
}

func TestFrame_ColumnKind(t *testing.T) {
	f := sampleFrame(t)

	assert.Equal(t, kindInt, f.columnKind(0))
	assert.Equal(t, kindString, f.columnKind(1))
	assert.Equal(t, kindFloat, f.columnKind(2), "int and float widen to float")
	assert.Equal(t, kindBool, f.columnKind(3))
	assert.Equal(t, kindTime, f.columnKind(4))

	mixed := FromNames("x")
	require.NoError(t, mixed.Append(true))
	require.NoError(t, mixed.Append("yes"))
	assert.Equal(t, kindString, mixed.columnKind(0))

	empty := FromNames("x")
	require.NoError(t, empty.Append(nil))
	assert.Equal(t, kindString, empty.columnKind(0))
}

func TestFrame_ToArrow(t *testing.T) {
	f := sampleFrame(t)
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := f.ToArrow(mem)
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, int64(5), rec.NumCols())
	assert.Equal(t, arrow.PrimitiveTypes.Int64, rec.Schema().Field(0).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, rec.Schema().Field(2).Type)

	ids := rec.Column(0).(*array.Int64)
	assert.Equal(t, []int64{1, 2, 3}, ids.Int64Values())

	names := rec.Column(1).(*array.String)
	assert.Equal(t, "ada", names.Value(0))
	assert.True(t, names.IsNull(2))

	scores := rec.Column(2).(*array.Float64)
	assert.Equal(t, 7.0, scores.Value(1))
}

func TestFrame_WriteJSON(t *testing.T) {
	f := FromNames("id", "name")
	require.NoError(t, f.Append(1, "ada"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, FormatJSON, CompressionNone))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ada", got[0]["name"])
	assert.EqualValues(t, 1, got[0]["id"])
}

func TestFrame_WriteTableAndCSV(t *testing.T) {
	f := FromNames("id", "name")
	require.NoError(t, f.Append(1, "ada"))

	var table bytes.Buffer
	require.NoError(t, f.Write(&table, FormatTable, CompressionNone))
	assert.Contains(t, table.String(), "ada")

	var csv bytes.Buffer
	require.NoError(t, f.Write(&csv, FormatCSV, CompressionNone))
	lines := strings.Split(strings.TrimSpace(csv.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,name", strings.ToLower(lines[0]))
	assert.Equal(t, "1,ada", lines[1])
}

func TestFrame_WriteGzip(t *testing.T) {
	f := FromNames("id")
	require.NoError(t, f.Append(1))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, FormatJSON, CompressionGzip))

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(raw))
}

func TestFrame_WriteAvro(t *testing.T) {
	f := sampleFrame(t)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, FormatAvro, CompressionNone))

	r, err := goavro.NewOCFReader(&buf)
	require.NoError(t, err)

	var n int
	for r.Scan() {
		_, err := r.Read()
		require.NoError(t, err)
		n++
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 3, n)
}

func TestFrame_WriteUnknown(t *testing.T) {
	f := FromNames("id")

	err := f.Write(io.Discard, "xml", CompressionNone)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	err = f.Write(io.Discard, FormatJSON, "brotli")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestAvroName(t *testing.T) {
	tests := map[string]string{
		"id":         "id",
		"first name": "first_name",
		"1st":        "_1st",
		"count(*)":   "count___",
	}
	for in, want := range tests {
		assert.Equal(t, want, avroName(in), in)
	}
}
