package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"watch-harvest/pkg/models"

	"github.com/segmentio/kafka-go"
)

// Publisher announces records after they were stored.
type Publisher interface {
	Publish(ctx context.Context, ev RecordEvent) error
	Close() error
}

// RecordEvent is one message on the record feed.
type RecordEvent struct {
	RunID     string               `json:"runId"`
	Site      string               `json:"site"`
	Reference string               `json:"reference"`
	SourceURL string               `json:"sourceUrl"`
	Record    models.ProductRecord `json:"record"`
	At        time.Time            `json:"at"`
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes record events keyed by reference, so one product
// always lands on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev RecordEvent) error {
	b, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Reference), Value: b})
}

func (k *KafkaPublisher) Close() error { return k.writer.Close() }

// Nop drops every event. It stands in when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, RecordEvent) error { return nil }
func (Nop) Close() error                               { return nil }
