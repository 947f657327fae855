// Package snowflake provides the snowflake adapter.
//
//	[connection.dwh]
//	adapter = "snowflake"
//	account = "xy12345.eu-west-1"
//	user = "analyst"
//	password = "..."
//	database = "ANALYTICS"
//	schema = "PUBLIC"
//	warehouse = "COMPUTE_WH"
//	role = "ANALYST"
package snowflake

import (
	"github.com/snowflakedb/gosnowflake"

	"github.com/schaumb/streamlit/pkg/adapters/sqlbase"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/errors"
)

// DriverName is the database/sql driver name registered by gosnowflake.
const DriverName = "snowflake"

// New creates the snowflake adapter.
func New(deps connection.Deps) connection.Adapter {
	return sqlbase.New(DriverName, DSN, deps)
}

// DSN builds a gosnowflake data source name.
func DSN(params connection.Params) (string, error) {
	account, err := params.Require("account")
	if err != nil {
		return "", err
	}
	user, err := params.Require("user")
	if err != nil {
		return "", err
	}

	cfg := &gosnowflake.Config{
		Account:   account,
		User:      user,
		Password:  params.String("password"),
		Database:  params.String("database"),
		Schema:    params.String("schema"),
		Warehouse: params.String("warehouse"),
		Role:      params.String("role"),
		// Keep the session alive for long-lived cached connections
		KeepSessionAlive: true,
	}
	if d := params.Duration("login_timeout", 0); d > 0 {
		cfg.LoginTimeout = d
	}
	if auth := params.String("authenticator"); auth == "externalbrowser" {
		cfg.Authenticator = gosnowflake.AuthTypeExternalBrowser
	}

	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid snowflake configuration")
	}
	return dsn, nil
}
