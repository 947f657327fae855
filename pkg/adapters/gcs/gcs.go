// Package gcs provides the Google Cloud Storage adapter.
//
//	[connection.files]
//	adapter = "gcs"
//	bucket = "exports"
//	credentials_file = "/secrets/gcs.json"
//
// Service account fields work as for the bigquery adapter.
package gcs

import (
	"context"
	"strings"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/schaumb/streamlit/pkg/adapters/gcpauth"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
)

// Adapter opens *storage.Client handles. Each adapter serves one cache
// entry, so it tracks whether its client was closed.
type Adapter struct {
	logger *zap.Logger
	bucket string
	closed atomic.Bool
}

var (
	_ connection.Adapter = (*Adapter)(nil)
	_ connection.Querier = (*Adapter)(nil)
)

// New creates the gcs adapter and registers the object listing conversion.
func New(deps connection.Deps) connection.Adapter {
	conversion.RegisterFrame(deps.Conversions, ObjectsToFrame)
	return &Adapter{logger: deps.Logger}
}

// Connect creates the storage client.
func (a *Adapter) Connect(ctx context.Context, params connection.Params) (connection.Handle, error) {
	opts, _, err := gcpauth.ClientOptions(ctx, params, storage.ScopeReadWrite)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}

	a.bucket = params.String("bucket")
	a.logger.Info("GCS client created", zap.String("bucket", a.bucket))
	return client, nil
}

// IsConnected reports whether the client has not been closed.
func (a *Adapter) IsConnected(_ context.Context, h connection.Handle) bool {
	_, ok := h.(*storage.Client)
	return ok && !a.closed.Load()
}

// Close closes the client once.
func (a *Adapter) Close(_ context.Context, h connection.Handle) error {
	client, ok := h.(*storage.Client)
	if !ok || a.closed.Swap(true) {
		return nil
	}
	return client.Close()
}

// Query lists objects. The query is "gs://bucket/prefix", "bucket/prefix" or,
// when the connection has a bucket, just a prefix. A trailing "/" on the
// prefix lists one level only.
func (a *Adapter) Query(ctx context.Context, h connection.Handle, query string) (any, error) {
	client, ok := h.(*storage.Client)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected *storage.Client handle, got %T", h)
	}
	bucket, prefix, err := ParsePath(query, a.bucket)
	if err != nil {
		return nil, err
	}
	q := &storage.Query{Prefix: prefix}
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		q.Delimiter = "/"
	}
	return client.Bucket(bucket).Objects(ctx, q), nil
}

// ParsePath splits an object path into bucket and prefix.
func ParsePath(path, defaultBucket string) (bucket, prefix string, err error) {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "gs://"); ok {
		bucket, prefix, _ = strings.Cut(rest, "/")
	} else if defaultBucket != "" {
		bucket, prefix = defaultBucket, strings.TrimPrefix(path, "/")
	} else {
		bucket, prefix, _ = strings.Cut(path, "/")
	}
	if bucket == "" {
		return "", "", errors.Newf(errors.ErrorTypeValidation, "no bucket in %q and none configured", path)
	}
	return bucket, prefix, nil
}

var objectColumns = []frame.Column{
	{Name: "bucket", Type: "STRING"},
	{Name: "name", Type: "STRING"},
	{Name: "size", Type: "INTEGER"},
	{Name: "content_type", Type: "STRING"},
	{Name: "updated", Type: "TIMESTAMP"},
	{Name: "md5", Type: "BYTES"},
}

// ObjectsToFrame drains an object listing into a frame.
func ObjectsToFrame(ctx context.Context, it *storage.ObjectIterator) (*frame.Frame, error) {
	var attrs []*storage.ObjectAttrs
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to list objects")
		}
		attrs = append(attrs, a)
	}
	return AttrsToFrame(attrs)
}

// AttrsToFrame builds one row per object. Prefix entries of a delimited
// listing have only a name.
func AttrsToFrame(attrs []*storage.ObjectAttrs) (*frame.Frame, error) {
	f := frame.New(objectColumns...)
	for _, a := range attrs {
		if a.Prefix != "" {
			if err := f.Append(a.Bucket, a.Prefix, nil, nil, nil, nil); err != nil {
				return nil, err
			}
			continue
		}
		if err := f.Append(a.Bucket, a.Name, a.Size, a.ContentType, a.Updated, a.MD5); err != nil {
			return nil, err
		}
	}
	return f, nil
}
