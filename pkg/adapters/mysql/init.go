package mysql

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("mysql", New, "mariadb")
}
