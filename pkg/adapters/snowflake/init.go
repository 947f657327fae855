package snowflake

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("snowflake", New, "sf")
}
