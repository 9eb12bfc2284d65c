package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON events keyed by user ID.
type KafkaNotifier struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaWriter builds a writer for the notifications topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaNotifier constructs a KafkaNotifier.
func NewKafkaNotifier(writer MessageWriter, now func() time.Time) *KafkaNotifier {
	if now == nil {
		now = time.Now
	}
	return &KafkaNotifier{writer: writer, now: now}
}

type kafkaEvent struct {
	Message
	SentAt time.Time `json:"sentAt"`
}

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, msg Message) error {
	if k == nil || k.writer == nil {
		return fmt.Errorf("notify kafka: nil writer")
	}
	payload, errMarshal := json.Marshal(kafkaEvent{Message: msg, SentAt: k.now().UTC()})
	if errMarshal != nil {
		return fmt.Errorf("notify kafka: marshal: %w", errMarshal)
	}
	errWrite := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(msg.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	})
	if errWrite != nil {
		return fmt.Errorf("notify kafka: write: %w", errWrite)
	}
	return nil
}

// Close closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
