// Package streamlit hosts the data-source connection layer, the modal dialog
// helper and the locale helper of the app framework.
//
// # Connections
//
// Application code asks for a client by connection name:
//
//	reg := connection.NewRegistry(store, connection.WithLogger(logger.Get()))
//	db, err := connection.Get[*sql.DB](ctx, reg, "local", nil)
//
// The name is looked up in the secrets file under [connection.<name>]. Its
// adapter field selects an adapter from the catalog, which adapter packages
// fill from their init functions:
//
//	import _ "github.com/schaumb/streamlit/pkg/adapters/all"
//
// Handles are cached per (name, kwargs) and checked for liveness on every
// access. A dead handle is rebuilt once.
//
// Query results of adapters are turned into a *frame.Frame through the
// conversion registry owned by the connection registry:
//
//	res, _ := db.QueryContext(ctx, "SELECT * FROM people")
//	f, ok, err := reg.Conversions().TryConvertToFrame(ctx, res)
//
// # Modals
//
// Package modal adds a modal block to a ui.Container and enqueues open and
// close events on the session run context. Package locale translates
// messages for the language of the current session.
//
// # Layout
//
//   - pkg/connection: registry, adapter catalog, connection parameters
//   - pkg/conversion: result conversion registry
//   - pkg/frame: tabular results and their export formats
//   - pkg/secrets: secrets file loading and watching
//   - pkg/adapters: bigquery, duckdb, gcs, kafka, mongodb, mysql, postgres,
//     s3, snowflake and sqlite adapters
//   - pkg/modal, pkg/ui, pkg/session: modal dialogs and their host objects
//   - pkg/locale: gettext-style catalogs
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability:
//     shared infrastructure
//   - cmd/stconn: command line tool
package streamlit
