package s3

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
)

func TestListingToFrame_ViaRegistry(t *testing.T) {
	conv := conversion.NewRegistry(conversion.WithLogger(zap.NewNop()))
	New(connection.Deps{Conversions: conv, Logger: zap.NewNop()})

	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	out := &s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("raw/a.parquet"), Size: aws.Int64(10), LastModified: &modified, ETag: aws.String(`"abc"`), StorageClass: types.ObjectStorageClassStandard},
		},
		CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("raw/2024/")}},
	}

	f, ok, err := conv.TryConvertToFrame(context.Background(), out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, f.NumRows())

	v, _ := f.Value(0, 0)
	assert.Equal(t, "raw/a.parquet", v)
	v, _ = f.Value(0, 2)
	assert.Equal(t, modified, v)
	v, _ = f.Value(0, 4)
	assert.Equal(t, "STANDARD", v)
	v, _ = f.Value(1, 0)
	assert.Equal(t, "raw/2024/", v)
}

func TestConnect_StaticCredentials(t *testing.T) {
	ctx := context.Background()
	a := New(connection.Deps{Conversions: conversion.NewRegistry(), Logger: zap.NewNop()})

	h, err := a.Connect(ctx, connection.Params{
		"region":            "eu-west-1",
		"access_key_id":     "AKIDEXAMPLE",
		"secret_access_key": "secret",
		"endpoint":          "http://localhost:9000",
	})
	require.NoError(t, err)

	client, ok := h.(*s3.Client)
	require.True(t, ok)
	opts := client.Options()
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.Equal(t, "http://localhost:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)

	creds, err := opts.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)

	assert.True(t, a.IsConnected(ctx, h))
	assert.NoError(t, a.Close(ctx, h))
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path, def      string
		bucket, prefix string
	}{
		{"s3://lake/raw/2024/", "", "lake", "raw/2024/"},
		{"s3://lake", "other", "lake", ""},
		{"lake/raw", "", "lake", "raw"},
		{"/raw/2024", "exports", "exports", "raw/2024"},
		{"", "exports", "exports", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			bucket, prefix, err := ParsePath(tt.path, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}

	_, _, err := ParsePath("/raw", "")
	assert.Error(t, err)
}
