// Package kafka provides the kafka adapter. Handles are sarama.Client values;
// queries read the most recent messages of a topic.
//
//	[connection.events]
//	adapter = "kafka"
//	brokers = "kafka-1:9092,kafka-2:9092"
//	security_protocol = "SASL_SSL"
//	sasl_mechanism = "PLAIN"
//	sasl_username = "reader"
//	sasl_password = "..."
//	fetch_timeout = "5s"
//
// A partition read stops at the high water mark, or when no message arrived
// for fetch_timeout. The last offsets of a partition may be transaction
// markers or compacted away, so they are never delivered.
package kafka

import (
	"context"
	"crypto/tls"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/adapters/sqlbase"
	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/conversion"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
)

// DefaultLimit is the number of messages read per partition when the query
// gives no limit.
const DefaultLimit = 100

// DefaultFetchTimeout is how long a partition read waits for the next
// message before returning what it has.
const DefaultFetchTimeout = 5 * time.Second

// Messages is the result of a query, ordered by partition then offset.
type Messages []*sarama.ConsumerMessage

// Adapter opens sarama.Client handles.
type Adapter struct {
	logger       *zap.Logger
	fetchTimeout time.Duration
}

var (
	_ connection.Adapter = (*Adapter)(nil)
	_ connection.Querier = (*Adapter)(nil)
)

// New creates the kafka adapter and registers the message conversion.
func New(deps connection.Deps) connection.Adapter {
	conversion.RegisterFrame(deps.Conversions, MessagesToFrame)
	return &Adapter{logger: deps.Logger}
}

// SaramaConfig builds the client configuration from the parameters.
func SaramaConfig(params connection.Params) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = params.StringOr("client_id", "stconn")
	config.Consumer.Return.Errors = true
	config.Net.DialTimeout = params.Duration("connect_timeout", sqlbase.DefaultConnectTimeout)

	if v := params.String("version"); v != "" {
		version, err := sarama.ParseKafkaVersion(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka version")
		}
		config.Version = version
	}

	switch protocol := strings.ToUpper(params.StringOr("security_protocol", "PLAINTEXT")); protocol {
	case "PLAINTEXT", "SASL_PLAINTEXT":
	case "SSL", "SASL_SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: params.Bool("tls_insecure_skip_verify", false),
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported security_protocol %q", protocol)
	}

	if mechanism := params.String("sasl_mechanism"); mechanism != "" {
		if !strings.EqualFold(mechanism, "PLAIN") {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported sasl_mechanism %q, only PLAIN is available", mechanism)
		}
		config.Net.SASL.Enable = true
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		config.Net.SASL.User = params.String("sasl_username")
		config.Net.SASL.Password = params.String("sasl_password")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka configuration")
	}
	return config, nil
}

// Connect creates the client, which fetches the cluster metadata.
func (a *Adapter) Connect(_ context.Context, params connection.Params) (connection.Handle, error) {
	brokers := params.StringSlice("brokers")
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required parameter \"brokers\"")
	}
	config, err := SaramaConfig(params)
	if err != nil {
		return nil, err
	}

	a.fetchTimeout = params.Duration("fetch_timeout", DefaultFetchTimeout)
	if a.fetchTimeout <= 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "fetch_timeout must be positive, got %s", a.fetchTimeout)
	}

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create Kafka client")
	}

	a.logger.Info("Kafka client created",
		zap.Strings("brokers", brokers),
		zap.String("client_id", config.ClientID))
	return client, nil
}

// IsConnected reports whether the client is open and knows at least one
// broker.
func (a *Adapter) IsConnected(_ context.Context, h connection.Handle) bool {
	client, ok := h.(sarama.Client)
	return ok && !client.Closed() && len(client.Brokers()) > 0
}

// Close closes the client.
func (a *Adapter) Close(_ context.Context, h connection.Handle) error {
	client, ok := h.(sarama.Client)
	if !ok || client.Closed() {
		return nil
	}
	return client.Close()
}

// Query reads the latest messages of a topic. The query is
// "topic[:partition] [limit]"; without a partition every partition is read.
func (a *Adapter) Query(ctx context.Context, h connection.Handle, query string) (any, error) {
	client, ok := h.(sarama.Client)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "expected sarama.Client handle, got %T", h)
	}
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	partitions := q.Partitions
	if partitions == nil {
		partitions, err = client.Partitions(q.Topic)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to list partitions")
		}
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create consumer")
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			a.logger.Debug("failed to close consumer", zap.Error(err))
		}
	}()

	var out Messages
	for _, p := range partitions {
		msgs, err := readTail(ctx, client, consumer, q.Topic, p, q.Limit, a.idleTimeout())
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (a *Adapter) idleTimeout() time.Duration {
	if a.fetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return a.fetchTimeout
}

// readTail reads up to limit messages ending at the partition's high water
// mark. It returns early when no message arrives within idle.
func readTail(ctx context.Context, client sarama.Client, consumer sarama.Consumer, topic string, partition int32, limit int64, idle time.Duration) (Messages, error) {
	newest, err := client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read newest offset")
	}
	oldest, err := client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read oldest offset")
	}
	start := max(oldest, newest-limit)
	if start >= newest {
		return nil, nil
	}

	pc, err := consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to consume partition")
	}
	defer pc.AsyncClose()

	out := make(Messages, 0, newest-start)
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return out, nil
		case msg := <-pc.Messages():
			out = append(out, msg)
			hwm := pc.HighWaterMarkOffset()
			if msg.Offset >= newest-1 || (hwm > 0 && msg.Offset >= hwm-1) {
				return out, nil
			}
			timer.Reset(idle)
		case cerr := <-pc.Errors():
			return nil, errors.Wrap(cerr.Err, errors.ErrorTypeData, "failed to read messages")
		}
	}
}

// TopicQuery is a parsed query.
type TopicQuery struct {
	Topic      string
	Partitions []int32
	Limit      int64
}

// ParseQuery parses "topic[:partition] [limit]".
func ParseQuery(query string) (TopicQuery, error) {
	fields := strings.Fields(query)
	if len(fields) == 0 || len(fields) > 2 {
		return TopicQuery{}, errors.Newf(errors.ErrorTypeValidation, "query must be \"topic[:partition] [limit]\", got %q", query)
	}

	q := TopicQuery{Limit: DefaultLimit}
	topic, partition, hasPartition := strings.Cut(fields[0], ":")
	if topic == "" {
		return TopicQuery{}, errors.New(errors.ErrorTypeValidation, "query has no topic")
	}
	q.Topic = topic
	if hasPartition {
		p, err := strconv.ParseInt(partition, 10, 32)
		if err != nil || p < 0 {
			return TopicQuery{}, errors.Newf(errors.ErrorTypeValidation, "invalid partition %q", partition)
		}
		q.Partitions = []int32{int32(p)}
	}
	if len(fields) == 2 {
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || n <= 0 {
			return TopicQuery{}, errors.Newf(errors.ErrorTypeValidation, "invalid limit %q", fields[1])
		}
		q.Limit = n
	}
	return q, nil
}

var messageColumns = []frame.Column{
	{Name: "topic", Type: "STRING"},
	{Name: "partition", Type: "INTEGER"},
	{Name: "offset", Type: "INTEGER"},
	{Name: "timestamp", Type: "TIMESTAMP"},
	{Name: "key", Type: "STRING"},
	{Name: "value", Type: "STRING"},
	{Name: "headers", Type: "JSON"},
}

// MessagesToFrame builds one row per message. Keys and values are decoded
// as text and headers become a JSON object.
func MessagesToFrame(_ context.Context, msgs Messages) (*frame.Frame, error) {
	f := frame.New(messageColumns...)
	for _, m := range msgs {
		var ts any
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.UTC().Truncate(time.Millisecond)
		}
		if err := f.Append(m.Topic, m.Partition, m.Offset, ts, bytesValue(m.Key), bytesValue(m.Value), headersValue(m.Headers)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func bytesValue(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func headersValue(headers []*sarama.RecordHeader) any {
	if len(headers) == 0 {
		return nil
	}
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[string(h.Key)] = string(h.Value)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}
