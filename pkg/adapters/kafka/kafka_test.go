package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
)

func TestSaramaConfig(t *testing.T) {
	config, err := SaramaConfig(connection.Params{
		"client_id":         "dashboard",
		"version":           "3.6.0",
		"security_protocol": "sasl_ssl",
		"sasl_mechanism":    "PLAIN",
		"sasl_username":     "reader",
		"sasl_password":     "secret",
		"connect_timeout":   "3s",
	})
	require.NoError(t, err)
	assert.Equal(t, "dashboard", config.ClientID)
	assert.Equal(t, sarama.V3_6_0_0, config.Version)
	assert.True(t, config.Net.TLS.Enable)
	assert.True(t, config.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), config.Net.SASL.Mechanism)
	assert.Equal(t, "reader", config.Net.SASL.User)
	assert.Equal(t, 3*time.Second, config.Net.DialTimeout)

	defaults, err := SaramaConfig(connection.Params{})
	require.NoError(t, err)
	assert.Equal(t, "stconn", defaults.ClientID)
	assert.False(t, defaults.Net.TLS.Enable)

	for _, params := range []connection.Params{
		{"version": "banana"},
		{"security_protocol": "carrier_pigeon"},
		{"sasl_mechanism": "SCRAM-SHA-512"},
	} {
		_, err := SaramaConfig(params)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "params %v: %v", params, err)
	}
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery("events")
	require.NoError(t, err)
	assert.Equal(t, TopicQuery{Topic: "events", Limit: DefaultLimit}, q)

	q, err = ParseQuery(" events:3 25 ")
	require.NoError(t, err)
	assert.Equal(t, TopicQuery{Topic: "events", Partitions: []int32{3}, Limit: 25}, q)

	for _, bad := range []string{"", ":1", "events:x", "events:-1", "events 0", "events 1 2"} {
		_, err := ParseQuery(bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "query %q: %v", bad, err)
	}
}

func TestMessagesToFrame(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	f, err := MessagesToFrame(context.Background(), Messages{
		{Topic: "events", Partition: 0, Offset: 7, Timestamp: at, Key: []byte("k1"), Value: []byte(`{"a":1}`),
			Headers: []*sarama.RecordHeader{{Key: []byte("source"), Value: []byte("web")}}},
		{Topic: "events", Partition: 1, Offset: 2, Value: []byte("plain")},
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.NumRows())
	assert.Equal(t, []string{"topic", "partition", "offset", "timestamp", "key", "value", "headers"}, f.ColumnNames())

	rec := f.Records()
	assert.Equal(t, int64(7), rec[0]["offset"])
	assert.Equal(t, at, rec[0]["timestamp"])
	assert.Equal(t, "k1", rec[0]["key"])
	assert.Equal(t, `{"source":"web"}`, rec[0]["headers"])
	assert.Nil(t, rec[1]["key"])
	assert.Nil(t, rec[1]["timestamp"])
	assert.Nil(t, rec[1]["headers"])
}

func TestAdapter_QueryMockBroker(t *testing.T) {
	broker := sarama.NewMockBroker(t, 1)
	defer broker.Close()

	broker.SetHandlerByMap(map[string]sarama.MockResponse{
		"ApiVersionsRequest": sarama.NewMockApiVersionsResponse(t),
		"MetadataRequest": sarama.NewMockMetadataResponse(t).
			SetController(broker.BrokerID()).
			SetBroker(broker.Addr(), broker.BrokerID()).
			SetLeader("events", 0, broker.BrokerID()),
		"OffsetRequest": sarama.NewMockOffsetResponse(t).
			SetOffset("events", 0, sarama.OffsetOldest, 0).
			SetOffset("events", 0, sarama.OffsetNewest, 2),
		"FetchRequest": sarama.NewMockFetchResponse(t, 2).
			SetMessage("events", 0, 0, sarama.StringEncoder("first")).
			SetMessage("events", 0, 1, sarama.StringEncoder("second")).
			SetHighWaterMark("events", 0, 2),
	})

	conv := conversion.NewRegistry(conversion.WithLogger(zap.NewNop()))
	a := New(connection.Deps{Conversions: conv, Logger: zap.NewNop()})
	ctx := context.Background()

	h, err := a.Connect(ctx, connection.Params{"brokers": broker.Addr()})
	require.NoError(t, err)
	assert.True(t, a.IsConnected(ctx, h))

	q := a.(connection.Querier)
	res, err := q.Query(ctx, h, "events")
	require.NoError(t, err)

	f, ok, err := conv.TryConvertToFrame(ctx, res)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, f.NumRows())
	assert.Equal(t, "first", f.Records()[0]["value"])
	assert.Equal(t, "second", f.Records()[1]["value"])

	require.NoError(t, a.Close(ctx, h))
	assert.False(t, a.IsConnected(ctx, h))
	assert.NoError(t, a.Close(ctx, h), "closing twice is a no-op")
}

func TestAdapter_QueryStopsWhenTailIsNeverDelivered(t *testing.T) {
	broker := sarama.NewMockBroker(t, 1)
	defer broker.Close()

	// Offset 2 is a transaction marker: the log ends at 3 but only 0 and 1
	// are ever fetched.
	broker.SetHandlerByMap(map[string]sarama.MockResponse{
		"ApiVersionsRequest": sarama.NewMockApiVersionsResponse(t),
		"MetadataRequest": sarama.NewMockMetadataResponse(t).
			SetController(broker.BrokerID()).
			SetBroker(broker.Addr(), broker.BrokerID()).
			SetLeader("orders", 0, broker.BrokerID()),
		"OffsetRequest": sarama.NewMockOffsetResponse(t).
			SetOffset("orders", 0, sarama.OffsetOldest, 0).
			SetOffset("orders", 0, sarama.OffsetNewest, 3),
		"FetchRequest": sarama.NewMockFetchResponse(t, 2).
			SetMessage("orders", 0, 0, sarama.StringEncoder("created")).
			SetMessage("orders", 0, 1, sarama.StringEncoder("paid")).
			SetHighWaterMark("orders", 0, 3),
	})

	a := New(connection.Deps{Conversions: conversion.NewRegistry(), Logger: zap.NewNop()})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := a.Connect(ctx, connection.Params{"brokers": broker.Addr(), "fetch_timeout": "200ms"})
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(ctx, h)) }()

	res, err := a.(connection.Querier).Query(ctx, h, "orders:0")
	require.NoError(t, err, "read must end before the context deadline")
	msgs, ok := res.(Messages)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[1].Offset)
}

func TestAdapter_ConnectErrors(t *testing.T) {
	a := New(connection.Deps{Conversions: conversion.NewRegistry(), Logger: zap.NewNop()})

	_, err := a.Connect(context.Background(), connection.Params{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)

	_, err = a.Connect(context.Background(), connection.Params{"brokers": "b:9092", "sasl_mechanism": "GSSAPI"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)

	_, err = a.Connect(context.Background(), connection.Params{"brokers": "b:9092", "fetch_timeout": "0s"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
}

func TestRegistered(t *testing.T) {
	_, key, err := connection.DefaultCatalog().Lookup("Kafka")
	require.NoError(t, err)
	assert.Equal(t, "kafka", key)
}
