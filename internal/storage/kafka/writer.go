// Package kafka publishes temperature measurements to a Kafka topic.
//
// This sink is append-only from the broker's point of view: "replace"
// semantics are left to downstream consumers (compacted topics keyed by
// location+type, or a materializing consumer).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"tempetl/internal/extract"
	"tempetl/internal/storage"
)

// messageWriter is the subset of *kafkago.Writer this sink needs; a seam for
// tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink implements storage.Sink by producing one JSON message per record.
type Sink struct {
	writer messageWriter
	now    func() time.Time
}

func init() {
	storage.Register("kafka", New)
}

// New creates a producer from a DSN of the form
// "broker1:9092[,broker2:9092...]/topic".
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	brokers, topic, err := splitDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Sink{writer: w, now: time.Now}, nil
}

func (s *Sink) Close() { _ = s.writer.Close() }

// EnsureSchema is a no-op; topics are managed by the broker.
func (s *Sink) EnsureSchema(ctx context.Context) error { return nil }

// message is the wire shape of one published measurement.
type message struct {
	Location    string  `json:"location"`
	TempType    string  `json:"temp_type"`
	Temperature float64 `json:"temperature"`
}

// ReplaceAll publishes every convertible record in a single WriteMessages
// call. The numeric-conversion skip policy matches the SQL backends.
func (s *Sink) ReplaceAll(ctx context.Context, recs []extract.Record) (written, skipped int64, err error) {
	rows, skipped := storage.ConvertRows(recs)
	if len(rows) == 0 {
		return 0, skipped, nil
	}

	producedAt := s.now().UTC().Format(time.RFC3339)

	msgs := make([]kafkago.Message, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(message{
			Location:    row.Location,
			TempType:    row.TempType,
			Temperature: row.Temperature,
		})
		if err != nil {
			return 0, skipped, fmt.Errorf("kafka: serialize measurement: %w", err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(row.Location),
			Value: payload,
			Headers: []kafkago.Header{
				{Key: "temp_type", Value: []byte(row.TempType)},
				{Key: "produced_at", Value: []byte(producedAt)},
			},
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, skipped, fmt.Errorf("kafka: write messages: %w", err)
	}
	return int64(len(msgs)), skipped, nil
}

// splitDSN parses "broker[,broker...]/topic".
func splitDSN(dsn string) (brokers []string, topic string, err error) {
	host, topic, ok := strings.Cut(dsn, "/")
	if !ok || strings.TrimSpace(topic) == "" {
		return nil, "", fmt.Errorf("kafka: DSN %q must be broker[,broker...]/topic", dsn)
	}

	for _, b := range strings.Split(host, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, "", fmt.Errorf("kafka: DSN %q has no brokers", dsn)
	}
	return brokers, strings.TrimSpace(topic), nil
}
