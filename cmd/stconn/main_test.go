package main

import (
	"bytes"
	stderrors "errors"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/testutil"
)

// workspace creates a directory with a secrets file describing a sqlite
// database, a config file and a locale catalog, and changes into it.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	db := filepath.Join(dir, "app.db")
	testutil.WriteFile(t, filepath.Join(dir, ".streamlit", "secrets.toml"), []byte(`
[connection.local]
adapter = "sqlite"
database = "`+filepath.ToSlash(db)+`"

[connection.broken]
adapter = "oracle"
`))
	testutil.WriteFile(t, filepath.Join(dir, "stconn.yaml"), []byte(`
log:
  level: error
locale:
  dir: locales
  language: pl
`))
	testutil.WriteFile(t, filepath.Join(dir, "locales", "pl", "LC_MESSAGES", "messages.po"), []byte("msgid \"Hello\"\nmsgstr \"Cześć\"\n"))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stconn v"+version)
}

func TestAdapters(t *testing.T) {
	workspace(t)
	out, err := run(t, "adapters")
	require.NoError(t, err)
	for _, key := range []string{"bigquery", "sqlite", "postgres", "kafka"} {
		assert.Contains(t, out, key)
	}
	assert.Contains(t, out, "sqlite3")
}

func TestConnections(t *testing.T) {
	workspace(t)
	out, err := run(t, "connections")
	require.NoError(t, err)
	assert.Contains(t, out, "local")
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "broken")
}

func TestCheck(t *testing.T) {
	workspace(t)
	out, err := run(t, "check", "local")
	require.NoError(t, err)
	assert.Contains(t, out, "local: connected")

	_, err = run(t, "check", "missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound), "got %v", err)

	_, err = run(t, "check", "broken")
	assert.ErrorContains(t, err, `unknown adapter "oracle"`)
}

func TestQuery(t *testing.T) {
	workspace(t)

	out, err := run(t, "query", "local", "SELECT 1 AS n, 'ada' AS name", "--format", "json")
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.EqualValues(t, 1, records[0]["n"])
	assert.Equal(t, "ada", records[0]["name"])

	out, err = run(t, "query", "local", "SELECT 2 AS n", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "n")
	assert.Contains(t, out, "2")

	_, err = run(t, "query", "local", "SELECT 1", "--format", "yaml")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
}

func TestQuery_CompressedFile(t *testing.T) {
	dir := workspace(t)
	path := filepath.Join(dir, "out.json.gz")

	out, err := run(t, "query", "local", "SELECT 3 AS n", "--format", "json", "--compress", "gzip", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"n":3`)
}

func TestWatch(t *testing.T) {
	workspace(t)
	out, err := run(t, "watch", "local", "--count", "2", "--interval", "1ms")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "local: live"))
}

func TestWatch_RejectsNonPositiveInterval(t *testing.T) {
	workspace(t)
	for _, interval := range []string{"0s", "-1s"} {
		t.Run(interval, func(t *testing.T) {
			_, err := run(t, "watch", "local", "--count", "1", "--interval", interval)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
		})
	}
}

type failingCloser struct {
	bytes.Buffer
}

func (*failingCloser) Close() error { return stderrors.New("disk full") }

func TestQuery_OutputCloseError(t *testing.T) {
	dir := workspace(t)
	sink := &failingCloser{}
	orig := createOutput
	createOutput = func(string) (io.WriteCloser, error) { return sink, nil }
	t.Cleanup(func() { createOutput = orig })

	_, err := run(t, "query", "local", "SELECT 4 AS n", "--format", "csv", "--out", filepath.Join(dir, "out.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile), "got %v", err)
	assert.Equal(t, 5, errors.ExitCode(err))
	assert.Contains(t, sink.String(), "4")
}

func TestQuery_OutputCreateError(t *testing.T) {
	dir := workspace(t)
	_, err := run(t, "query", "local", "SELECT 1", "--out", filepath.Join(dir, "missing", "out.txt"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile), "got %v", err)
}

func TestTranslate(t *testing.T) {
	workspace(t)

	out, err := run(t, "translate", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Cześć\n", out)

	out, err = run(t, "translate", "Hello", "--lang", "ja")
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", out)
}

func TestGlobalFlags(t *testing.T) {
	dir := workspace(t)
	other := filepath.Join(dir, "other.toml")
	testutil.WriteFile(t, other, []byte("[connection.alt]\nadapter = \"sqlite\"\ndatabase = \":memory:\"\n"))

	out, err := run(t, "connections", "--secrets", other)
	require.NoError(t, err)
	assert.Contains(t, out, "alt")
	assert.NotContains(t, out, "broken")

	_, err = run(t, "connections", "--log-level", "shouting")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)

	_, err = run(t, "connections", "--config", filepath.Join(dir, "nope.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
}
