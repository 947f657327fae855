package postgres

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("postgres", New, "postgresql", "pgx")
}
