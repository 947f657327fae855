package duckdb

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("duckdb", New)
}
