// Package all registers every built-in adapter in the default catalog.
//
//	import _ "github.com/schaumb/streamlit/pkg/adapters/all"
package all

import (
	_ "github.com/schaumb/streamlit/pkg/adapters/bigquery"
	_ "github.com/schaumb/streamlit/pkg/adapters/duckdb"
	_ "github.com/schaumb/streamlit/pkg/adapters/gcs"
	_ "github.com/schaumb/streamlit/pkg/adapters/kafka"
	_ "github.com/schaumb/streamlit/pkg/adapters/mongodb"
	_ "github.com/schaumb/streamlit/pkg/adapters/mysql"
	_ "github.com/schaumb/streamlit/pkg/adapters/postgres"
	_ "github.com/schaumb/streamlit/pkg/adapters/s3"
	_ "github.com/schaumb/streamlit/pkg/adapters/snowflake"
	_ "github.com/schaumb/streamlit/pkg/adapters/sqlite"
)
