package frame

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/linkedin/goavro/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/schaumb/streamlit/pkg/errors"
)

// Format selects the output encoding of Write.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatAvro  Format = "avro"
)

// Compression selects the stream compression applied by Write.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// Write encodes f in the given format to w, optionally compressed.
func (f *Frame) Write(w io.Writer, format Format, comp Compression) error {
	cw, err := compressWriter(w, comp)
	if err != nil {
		return err
	}

	switch format {
	case FormatTable, "":
		err = f.renderTable(cw, false)
	case FormatCSV:
		err = f.renderTable(cw, true)
	case FormatJSON:
		err = json.NewEncoder(cw).Encode(f.Records())
	case FormatAvro:
		err = f.writeAvro(cw)
	default:
		err = errors.Newf(errors.ErrorTypeValidation, "unknown format %q", format)
	}
	if err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// Render writes a human-readable table to w.
func (f *Frame) Render(w io.Writer) error {
	return f.renderTable(w, false)
}

func (f *Frame) renderTable(w io.Writer, csv bool) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := make(table.Row, len(f.Columns))
	for i, c := range f.Columns {
		header[i] = c.Name
	}
	tw.AppendHeader(header)

	for _, row := range f.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			if v = normalize(v); v != nil {
				r[i] = toString(v)
			}
		}
		tw.AppendRow(r)
	}

	if csv {
		tw.RenderCSV()
	} else {
		tw.SetStyle(table.StyleLight)
		tw.Render()
	}
	return nil
}

var avroNameRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// avroName maps a column name to a valid Avro field name.
func avroName(name string) string {
	n := avroNameRe.ReplaceAllString(name, "_")
	if n == "" || (n[0] >= '0' && n[0] <= '9') {
		n = "_" + n
	}
	return n
}

func avroType(k kind) string {
	switch k {
	case kindBool:
		return "boolean"
	case kindInt, kindTime:
		return "long"
	case kindFloat:
		return "double"
	case kindBytes:
		return "bytes"
	default:
		return "string"
	}
}

// AvroSchema returns the Avro record schema Write uses for FormatAvro.
// Timestamps are stored as microseconds since the epoch.
func (f *Frame) AvroSchema() string {
	schema, _, _ := f.avroSchema()
	return schema
}

func (f *Frame) avroSchema() (string, []kind, []string) {
	kinds := make([]kind, len(f.Columns))
	names := make([]string, len(f.Columns))
	fields := make([]map[string]any, len(f.Columns))
	seen := make(map[string]int)
	for i, c := range f.Columns {
		kinds[i] = f.columnKind(i)
		n := avroName(c.Name)
		if cnt := seen[n]; cnt > 0 {
			n = fmt.Sprintf("%s_%d", n, cnt)
		}
		seen[avroName(c.Name)]++
		names[i] = n
		fields[i] = map[string]any{
			"name":    n,
			"type":    []string{"null", avroType(kinds[i])},
			"default": nil,
		}
	}
	schema, _ := json.Marshal(map[string]any{
		"type":   "record",
		"name":   "Row",
		"fields": fields,
	})
	return string(schema), kinds, names
}

func (f *Frame) writeAvro(w io.Writer) error {
	schema, kinds, names := f.avroSchema()
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{W: w, Schema: schema})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create avro writer")
	}

	records := make([]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		rec := make(map[string]any, len(row))
		for i, v := range row {
			rec[names[i]] = avroValue(kinds[i], normalize(v))
		}
		records = append(records, rec)
	}

	if err := ocf.Append(records); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to append avro records")
	}
	return nil
}

func avroValue(k kind, v any) any {
	if v == nil {
		return nil
	}
	switch k {
	case kindFloat:
		if i, ok := v.(int64); ok {
			v = float64(i)
		}
	case kindTime:
		v = v.(time.Time).UnixMicro()
	case kindString:
		v = toString(v)
	}
	return goavro.Union(avroType(k), v)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func compressWriter(w io.Writer, comp Compression) (io.WriteCloser, error) {
	switch Compression(strings.ToLower(string(comp))) {
	case CompressionNone, "":
		return nopCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create zstd writer")
		}
		return zw, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown compression %q", comp)
	}
}
