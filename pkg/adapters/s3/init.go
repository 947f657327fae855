package s3

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("s3", New, "aws_s3")
}
