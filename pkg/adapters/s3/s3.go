// Package s3 provides the Amazon S3 adapter.
//
//	[connection.lake]
//	adapter = "s3"
//	region = "eu-west-1"
//	bucket = "lake"
//	access_key_id = "..."       # optional, default credential chain otherwise
//	secret_access_key = "..."
//	endpoint = "http://minio:9000"  # optional, S3-compatible stores
package s3

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
)

// Adapter opens *s3.Client handles. The client is stateless HTTP, so it is
// always considered connected.
type Adapter struct {
	logger *zap.Logger
	bucket string
}

var (
	_ connection.Adapter = (*Adapter)(nil)
	_ connection.Querier = (*Adapter)(nil)
)

// New creates the s3 adapter and registers the listing conversion.
func New(deps connection.Deps) connection.Adapter {
	conversion.RegisterFrame(deps.Conversions, ListingToFrame)
	return &Adapter{logger: deps.Logger}
}

// LoadConfig loads the AWS configuration for params.
func LoadConfig(ctx context.Context, params connection.Params) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := params.String("region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile := params.String("profile"); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if id := params.String("access_key_id"); id != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, params.String("secret_access_key"), params.String("session_token"))))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	return cfg, nil
}

// Connect creates the S3 client.
func (a *Adapter) Connect(ctx context.Context, params connection.Params) (connection.Handle, error) {
	cfg, err := LoadConfig(ctx, params)
	if err != nil {
		return nil, err
	}

	endpoint := params.String("endpoint")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = params.Bool("use_path_style", endpoint != "")
	})

	a.bucket = params.String("bucket")
	a.logger.Info("S3 client created",
		zap.String("region", cfg.Region),
		zap.String("bucket", a.bucket))
	return client, nil
}

// IsConnected always reports true for an *s3.Client.
func (a *Adapter) IsConnected(_ context.Context, h connection.Handle) bool {
	_, ok := h.(*s3.Client)
	return ok
}

// Close is a no-op; the client holds no connections of its own.
func (a *Adapter) Close(context.Context, connection.Handle) error {
	return nil
}

// Query lists one level of objects. The query is "s3://bucket/prefix",
// "bucket/prefix" or, when the connection has a bucket, just a prefix.
func (a *Adapter) Query(ctx context.Context, h connection.Handle, query string) (any, error) {
	client, ok := h.(*s3.Client)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected *s3.Client handle, got %T", h)
	}
	bucket, prefix, err := ParsePath(query, a.bucket)
	if err != nil {
		return nil, err
	}
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to list objects")
	}
	return out, nil
}

// ParsePath splits an object path into bucket and prefix.
func ParsePath(path, defaultBucket string) (bucket, prefix string, err error) {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "s3://"); ok {
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

var listingColumns = []frame.Column{
	{Name: "key", Type: "STRING"},
	{Name: "size", Type: "INTEGER"},
	{Name: "last_modified", Type: "TIMESTAMP"},
	{Name: "etag", Type: "STRING"},
	{Name: "storage_class", Type: "STRING"},
}

// ListingToFrame builds one row per object and per common prefix.
func ListingToFrame(_ context.Context, out *s3.ListObjectsV2Output) (*frame.Frame, error) {
	f := frame.New(listingColumns...)
	for _, obj := range out.Contents {
		var modified any
		if obj.LastModified != nil {
			modified = *obj.LastModified
		}
		if err := f.Append(
			aws.ToString(obj.Key),
			aws.ToInt64(obj.Size),
			modified,
			aws.ToString(obj.ETag),
			string(obj.StorageClass),
		); err != nil {
			return nil, err
		}
	}
	for _, p := range out.CommonPrefixes {
		if err := f.Append(aws.ToString(p.Prefix), nil, nil, nil, nil); err != nil {
			return nil, err
		}
	}
	return f, nil
}
