// Package mysql provides the mysql adapter.
//
//	[connection.shop]
//	adapter = "mysql"
//	host = "db.internal"
//	port = 3306
//	username = "app"
//	password = "..."
//	database = "shop"
//
// A full driver DSN can be given as dsn instead.
package mysql

import (
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/schaumb/streamlit/pkg/adapters/sqlbase"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/errors"
)

// DriverName is the database/sql driver name registered by go-sql-driver.
const DriverName = "mysql"

// New creates the mysql adapter.
func New(deps connection.Deps) connection.Adapter {
	return sqlbase.New(DriverName, DSN, deps)
}

// DSN builds a go-sql-driver data source name.
func DSN(params connection.Params) (string, error) {
	if dsn := params.String("dsn"); dsn != "" {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql dsn")
		}
		return dsn, nil
	}

	host, err := params.Require("host")
	if err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	cfg.User = params.StringOr("username", params.String("user"))
	cfg.Passwd = params.String("password")
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(params.Int("port", 3306)))
	cfg.DBName = params.String("database")
	cfg.ParseTime = true
	if d := params.Duration("connect_timeout", 0); d > 0 {
		cfg.Timeout = d
	}
	if tls := params.String("tls"); tls != "" {
		cfg.TLSConfig = tls
	}
	if extra := params.StringMap("params"); len(extra) > 0 {
		cfg.Params = extra
	}
	return cfg.FormatDSN(), nil
}
