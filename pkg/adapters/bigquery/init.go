package bigquery

import "github.com/schaumb/streamlit/pkg/connection"

func init() {
	// The dotted path keeps secrets written for the original adapter module working
	connection.MustRegister("bigquery", New, "bq", "streamlit.dbadapters.big_query.BigQueryAdapter")
}
