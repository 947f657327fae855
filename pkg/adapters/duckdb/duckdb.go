// Package duckdb provides the duckdb adapter.
//
//	[connection.lake]
//	adapter = "duckdb"
//	database = "lake.duckdb"   # empty for in-memory
//	access_mode = "read_only"
//	threads = 4
package duckdb

import (
	"net/url"
	"strconv"

	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver

	"github.com/schaumb/streamlit/pkg/adapters/sqlbase"
	"github.com/schaumb/streamlit/pkg/connection"
)

// DriverName is the database/sql driver name registered by go-duckdb.
const DriverName = "duckdb"

// New creates the duckdb adapter.
func New(deps connection.Deps) connection.Adapter {
	return sqlbase.New(DriverName, DSN, deps)
}

// DSN builds a go-duckdb data source name. Configuration options are passed
// as query parameters.
func DSN(params connection.Params) (string, error) {
	path := params.StringOr("database", params.String("path"))

	q := url.Values{}
	if mode := params.String("access_mode"); mode != "" {
		q.Set("access_mode", mode)
	}
	if n := params.Int("threads", 0); n > 0 {
		q.Set("threads", strconv.Itoa(n))
	}
	for k, v := range params.StringMap("settings") {
		q.Set(k, v)
	}
	if len(q) == 0 {
		return path, nil
	}
	return path + "?" + q.Encode(), nil
}
