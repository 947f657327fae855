package gcs

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	connection.MustRegister("gcs", New, "google_cloud_storage")
}
