// Package sqlite provides the sqlite adapter on the pure-Go modernc.org/sqlite
// driver.
//
// Secrets fields:
//
//	[connection.local]
//	adapter = "sqlite"
//	database = "app.db"        # or ":memory:" (default)
//	busy_timeout = "5s"
//	read_only = false
//	foreign_keys = true
package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/schaumb/streamlit/pkg/adapters/sqlbase"
	"github.com/schaumb/streamlit/pkg/connection"
)

// DriverName is the database/sql driver name registered by modernc.org/sqlite.
const DriverName = "sqlite"

// MemoryDatabase opens a private in-memory database.
const MemoryDatabase = ":memory:"

// New creates the sqlite adapter.
func New(deps connection.Deps) connection.Adapter {
	return &adapter{Adapter: sqlbase.New(DriverName, DSN, deps)}
}

type adapter struct {
	*sqlbase.Adapter
}

// Connect opens the database. An in-memory database is limited to one
// connection so every query sees the same data.
func (a *adapter) Connect(ctx context.Context, params connection.Params) (connection.Handle, error) {
	if database(params) == MemoryDatabase && !params.Has("max_connections") {
		merged := make(connection.Params, len(params)+1)
		for k, v := range params {
			merged[k] = v
		}
		merged["max_connections"] = 1
		params = merged
	}
	return a.Adapter.Connect(ctx, params)
}

func database(params connection.Params) string {
	for _, key := range []string{"database", "database_name", "path"} {
		if v := params.String(key); v != "" {
			return v
		}
	}
	return MemoryDatabase
}

// DSN builds a modernc.org/sqlite data source name.
func DSN(params connection.Params) (string, error) {
	db := database(params)

	q := url.Values{}
	if d := params.Duration("busy_timeout", 0); d > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", d.Milliseconds()))
	}
	if params.Bool("foreign_keys", false) {
		q.Add("_pragma", "foreign_keys(1)")
	}
	if params.Bool("read_only", false) {
		q.Set("mode", "ro")
	}
	if len(q) == 0 {
		return db, nil
	}

	if db != MemoryDatabase && !strings.HasPrefix(db, "file:") {
		db = "file:" + db
	}
	return db + "?" + q.Encode(), nil
}
