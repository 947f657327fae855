// Package bigquery provides the bigquery adapter.
//
// The connection's secrets fields are the service account key itself, as
// downloaded from the cloud console:
//
//	[connection.warehouse]
//	adapter = "bigquery"
//	type = "service_account"
//	project_id = "analytics"
//	private_key_id = "..."
//	private_key = "..."
//	client_email = "reader@analytics.iam.gserviceaccount.com"
//	token_uri = "https://oauth2.googleapis.com/token"
//
// A key file can be referenced with credentials_file instead, and with
// neither the application default credentials are used. Adapter options
// (project, location, endpoint, dry_run_ping) are not part of the key.
package bigquery

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/schaumb/streamlit/pkg/adapters/gcpauth"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
)

// Conn is a BigQuery client that remembers whether it was closed.
type Conn struct {
	Client   *bigquery.Client
	Location string

	dryRunPing bool
	closed     atomic.Bool
}

// Query runs sql and returns its row iterator.
func (c *Conn) Query(ctx context.Context, sql string) (*bigquery.RowIterator, error) {
	if c.Closed() {
		return nil, errors.New(errors.ErrorTypeConnection, "bigquery connection is closed")
	}
	q := c.Client.Query(sql)
	q.Location = c.Location
	return q.Read(ctx)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close closes the client. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.Client.Close()
}

// Adapter opens *Conn handles.
type Adapter struct {
	logger *zap.Logger
}

var (
	_ connection.Adapter = (*Adapter)(nil)
	_ connection.Querier = (*Adapter)(nil)
)

// New creates the bigquery adapter and registers the row iterator conversion.
func New(deps connection.Deps) connection.Adapter {
	conversion.RegisterFrame(deps.Conversions, IteratorToFrame)
	return &Adapter{logger: deps.Logger}
}

// Connect creates the client from the service account fields.
func (a *Adapter) Connect(ctx context.Context, params connection.Params) (connection.Handle, error) {
	opts, project, err := gcpauth.ClientOptions(ctx, params, bigquery.Scope)
	if err != nil {
		return nil, err
	}
	if project == "" {
		project = bigquery.DetectProjectID
	}

	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}

	a.logger.Info("BigQuery client created",
		zap.String("project", client.Project()),
		zap.String("location", params.String("location")))

	return &Conn{
		Client:     client,
		Location:   params.String("location"),
		dryRunPing: params.Bool("dry_run_ping", false),
	}, nil
}

// IsConnected reports whether the client is open. With dry_run_ping set it
// also dry-runs a trivial query.
func (a *Adapter) IsConnected(ctx context.Context, h connection.Handle) bool {
	c, ok := h.(*Conn)
	if !ok || c.Closed() {
		return false
	}
	if !c.dryRunPing {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	q := c.Client.Query("SELECT 1")
	q.DryRun = true
	q.Location = c.Location
	_, err := q.Run(ctx)
	return err == nil
}

// Query runs a standard SQL query and returns its row iterator.
func (a *Adapter) Query(ctx context.Context, h connection.Handle, query string) (any, error) {
	c, ok := h.(*Conn)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected *bigquery.Conn handle, got %T", h)
	}
	it, err := c.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query failed")
	}
	return it, nil
}

// Close closes the client.
func (a *Adapter) Close(_ context.Context, h connection.Handle) error {
	if c, ok := h.(*Conn); ok {
		return c.Close()
	}
	return nil
}

// IteratorToFrame drains a query result into a frame.
func IteratorToFrame(ctx context.Context, it *bigquery.RowIterator) (*frame.Frame, error) {
	var rows [][]bigquery.Value
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read BigQuery rows")
		}
		rows = append(rows, row)
	}
	return RowsToFrame(it.Schema, rows)
}

// RowsToFrame builds a frame from a result schema and its rows.
func RowsToFrame(schema bigquery.Schema, rows [][]bigquery.Value) (*frame.Frame, error) {
	cols := make([]frame.Column, len(schema))
	for i, fs := range schema {
		typ := string(fs.Type)
		if fs.Repeated {
			typ = "REPEATED " + typ
		}
		cols[i] = frame.Column{Name: fs.Name, Type: typ}
	}

	f := frame.New(cols...)
	for _, row := range rows {
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = plainValue(v)
		}
		if err := f.Append(vals...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func plainValue(v bigquery.Value) any {
	switch x := v.(type) {
	case civil.Date:
		return x.In(time.UTC)
	case civil.DateTime:
		return x.In(time.UTC)
	case civil.Time:
		return x.String()
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case []bigquery.Value:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plainValue(item)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
