package mongodb

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("mongodb", New, "mongo")
}
