package sqlite

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	// Register the sqlite adapter in the default catalog
	connection.MustRegister("sqlite", New, "sqlite3")
}
