package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the Kafka sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes one posting event per posting, keyed by identity.
type Kafka struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafka creates a Kafka sink for the given brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	})
}

// NewKafkaWithWriter builds a sink using a custom writer (tests).
func NewKafkaWithWriter(writer MessageWriter) *Kafka {
	return &Kafka{writer: writer, now: time.Now}
}

// Name implements Sink.
func (k *Kafka) Name() string { return "kafka" }

// Notify implements Sink.
func (k *Kafka) Notify(ctx context.Context, postings []types.Posting) error {
	now := k.now()
	msgs := make([]kafka.Message, 0, len(postings))
	for _, p := range postings {
		payload, err := EncodePostingEvent(p, now)
		if err != nil {
			return fmt.Errorf("posting %s: %w", p.Identity(), err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(p.Identity().String()),
			Value: payload,
			Time:  now.UTC(),
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write kafka messages: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
