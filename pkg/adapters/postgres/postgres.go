// Package postgres provides the postgres adapter on a pgx connection pool.
//
//	[connection.app]
//	adapter = "postgres"
//	host = "db.internal"
//	port = 5432
//	username = "app"
//	password = "..."
//	database = "app"
//	sslmode = "require"
//
// A connection URL or keyword/value string can be given as dsn instead.
package postgres

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/adapters/sqlbase"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
)

// Adapter opens *pgxpool.Pool handles.
type Adapter struct {
	logger *zap.Logger
}

var (
	_ connection.Adapter = (*Adapter)(nil)
	_ connection.Querier = (*Adapter)(nil)
)

// New creates the postgres adapter and registers the pgx.Rows conversion.
func New(deps connection.Deps) connection.Adapter {
	conversion.RegisterFrame(deps.Conversions, RowsToFrame)
	return &Adapter{logger: deps.Logger}
}

// Connect parses the pool configuration, creates the pool and pings it.
func (a *Adapter) Connect(ctx context.Context, params connection.Params) (connection.Handle, error) {
	connStr, err := ConnString(params)
	if err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}

	config.MaxConns = int32(params.Int("max_connections", sqlbase.DefaultMaxConnections))
	config.MinConns = int32(params.Int("min_connections", 0))
	if config.MinConns > config.MaxConns {
		config.MinConns = config.MaxConns / 2
	}
	config.MaxConnLifetime = params.Duration("max_lifetime", sqlbase.DefaultMaxLifetime)
	config.MaxConnIdleTime = params.Duration("max_idle_time", 30*time.Minute)
	config.HealthCheckPeriod = params.Duration("health_check_period", 30*time.Second)
	config.ConnConfig.ConnectTimeout = params.Duration("connect_timeout", sqlbase.DefaultConnectTimeout)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	var version string
	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to validate connection")
	}

	a.logger.Info("Connected to PostgreSQL",
		zap.String("version", version),
		zap.String("connection_string", sqlbase.Redact(connStr)),
		zap.Int32("max_connections", config.MaxConns),
		zap.Int32("min_connections", config.MinConns))
	return pool, nil
}

// IsConnected pings the pool.
func (a *Adapter) IsConnected(ctx context.Context, h connection.Handle) bool {
	pool, ok := h.(*pgxpool.Pool)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, sqlbase.DefaultPingTimeout)
	defer cancel()
	return pool.Ping(ctx) == nil
}

// Query runs query and returns its pgx.Rows.
func (a *Adapter) Query(ctx context.Context, h connection.Handle, query string) (any, error) {
	pool, ok := h.(*pgxpool.Pool)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected *pgxpool.Pool handle, got %T", h)
	}
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query failed")
	}
	return rows, nil
}

// Close closes the pool.
func (a *Adapter) Close(_ context.Context, h connection.Handle) error {
	if pool, ok := h.(*pgxpool.Pool); ok {
		pool.Close()
	}
	return nil
}

// ConnString builds a postgres connection URL from the parameters, or returns
// the dsn parameter unchanged.
func ConnString(params connection.Params) (string, error) {
	if dsn := params.StringOr("dsn", params.String("url")); dsn != "" {
		return dsn, nil
	}

	host, err := params.Require("host")
	if err != nil {
		return "", err
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(params.Int("port", 5432))),
		Path:   "/" + params.String("database"),
	}
	if user := params.StringOr("username", params.String("user")); user != "" {
		if pw := params.String("password"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}

	q := url.Values{}
	if mode := params.String("sslmode"); mode != "" {
		q.Set("sslmode", mode)
	}
	if app := params.StringOr("application_name", "stconn"); app != "" {
		q.Set("application_name", app)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RowsToFrame drains rows into a frame and closes them.
func RowsToFrame(ctx context.Context, rows pgx.Rows) (*frame.Frame, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]frame.Column, len(fields))
	for i, fd := range fields {
		cols[i] = frame.Column{Name: fd.Name, Type: typeName(fd.DataTypeOID)}
	}
	f := frame.New(cols...)

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read row values")
		}
		for i, v := range values {
			values[i] = plainValue(v)
		}
		if err := f.Append(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to iterate rows")
	}
	return f, nil
}

var pgTypes = pgtype.NewMap()

func typeName(oid uint32) string {
	if t, ok := pgTypes.TypeForOID(oid); ok {
		return t.Name
	}
	return strconv.FormatUint(uint64(oid), 10)
}

// plainValue turns pgx decoded values that have no frame kind into plain Go
// values.
func plainValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Interval:
		return time.Duration(x.Microseconds)*time.Microsecond +
			time.Duration(x.Days)*24*time.Hour
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
