package kafka

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("kafka", New)
}
