// Package sqlbase implements the parts shared by database/sql adapters: pool
// setup, liveness checks and *sql.Rows to frame conversion.
package sqlbase

import (
	"context"
	"database/sql"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
)

// Pool defaults, overridable per connection in secrets.
const (
	DefaultMaxConnections     = 10
	DefaultMaxIdleConnections = 5
	DefaultMaxLifetime        = time.Hour
	DefaultConnectTimeout     = 30 * time.Second
	DefaultPingTimeout        = 5 * time.Second
)

// DSNFunc builds a driver data source name from connection parameters.
type DSNFunc func(params connection.Params) (string, error)

// Adapter is a connection.Adapter for any database/sql driver. Handles are
// *sql.DB.
type Adapter struct {
	driver string
	dsn    DSNFunc
	logger *zap.Logger
}

var (
	_ connection.Adapter = (*Adapter)(nil)
	_ connection.Querier = (*Adapter)(nil)
)

// New creates an adapter for driver and registers the *sql.Rows conversion.
func New(driver string, dsn DSNFunc, deps connection.Deps) *Adapter {
	RegisterConversions(deps.Conversions)
	return &Adapter{
		driver: driver,
		dsn:    dsn,
		logger: deps.Logger,
	}
}

// RegisterConversions registers the *sql.Rows to frame conversion.
func RegisterConversions(r *conversion.Registry) {
	conversion.RegisterFrame(r, RowsToFrame)
}

// Connect opens the pool and pings it.
func (a *Adapter) Connect(ctx context.Context, params connection.Params) (connection.Handle, error) {
	dsn, err := a.dsn(params)
	if err != nil {
		return nil, err
	}
	return Open(ctx, a.driver, dsn, params, a.logger)
}

// IsConnected pings the pool.
func (a *Adapter) IsConnected(ctx context.Context, h connection.Handle) bool {
	db, ok := h.(*sql.DB)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	return db.PingContext(ctx) == nil
}

// Query runs query and returns its *sql.Rows.
func (a *Adapter) Query(ctx context.Context, h connection.Handle, query string) (any, error) {
	db, ok := h.(*sql.DB)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected *sql.DB handle, got %T", h)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query failed")
	}
	return rows, nil
}

// Close closes the pool.
func (a *Adapter) Close(_ context.Context, h connection.Handle) error {
	db, ok := h.(*sql.DB)
	if !ok {
		return nil
	}
	return db.Close()
}

// Open opens a database/sql pool, applies the pool parameters
// (max_connections, max_idle_connections, max_lifetime, connect_timeout) and
// pings it.
func Open(ctx context.Context, driver, dsn string, params connection.Params, log *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connection string is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database connection")
	}

	maxConns := params.Int("max_connections", DefaultMaxConnections)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(params.Int("max_idle_connections", DefaultMaxIdleConnections))
	db.SetConnMaxLifetime(params.Duration("max_lifetime", DefaultMaxLifetime))

	pingCtx, cancel := context.WithTimeout(ctx, params.Duration("connect_timeout", DefaultConnectTimeout))
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close() // Ignore close error when connection already failed
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "database ping failed")
	}

	if log != nil {
		log.Info("SQL database connection created successfully",
			zap.String("driver", driver),
			zap.String("connection_string", Redact(dsn)),
			zap.Int("max_connections", maxConns))
	}
	return db, nil
}

// Stats describes a pool for diagnostics.
type Stats struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
	MaxOpen         int `json:"max_open"`
}

// PoolStats returns the pool statistics of db.
func PoolStats(db *sql.DB) Stats {
	s := db.Stats()
	return Stats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		MaxOpen:         s.MaxOpenConnections,
	}
}

// RowsToFrame drains rows into a frame and closes them. Text columns that
// the driver returns as []byte become strings.
func RowsToFrame(ctx context.Context, rows *sql.Rows) (*frame.Frame, error) {
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read column types")
	}

	cols := make([]frame.Column, len(types))
	binary := make([]bool, len(types))
	for i, ct := range types {
		cols[i] = frame.Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
		binary[i] = isBinaryType(ct.DatabaseTypeName())
	}
	f := frame.New(cols...)

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row")
		}
		row := make([]any, len(values))
		for i, v := range values {
			if b, ok := v.([]byte); ok && !binary[i] {
				row[i] = string(b)
				continue
			}
			row[i] = v
		}
		if err := f.Append(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to iterate rows")
	}
	return f, nil
}

func isBinaryType(name string) bool {
	n := strings.ToUpper(name)
	return strings.Contains(n, "BLOB") || strings.Contains(n, "BINARY") || n == "BYTEA"
}

var passwordRe = regexp.MustCompile(`(?i)(password=)[^;&\s]*`)
var userinfoRe = regexp.MustCompile(`^([^:/@]+):([^@]*)@`)

// Redact masks the password in a DSN for logging. URL, key=value and
// user:pass@host forms are recognized.
func Redact(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	dsn = passwordRe.ReplaceAllString(dsn, "${1}xxxxx")
	return userinfoRe.ReplaceAllString(dsn, "${1}:xxxxx@")
}
