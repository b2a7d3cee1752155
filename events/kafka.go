package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events to one topic, keyed by channel id so a
// channel's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewKafkaSink builds a synchronous writer that waits for all in-sync
// replicas.
func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, topic, log)
}

func newKafkaSink(w messageWriter, topic string, log *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic, log: log}
}

// MessageCreated publishes evt.
func (s *KafkaSink) MessageCreated(ctx context.Context, evt MessageCreated) error {
	value, err := Encode(TypeMessageCreated, evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(evt.ChannelID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeMessageCreated)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to %s: %w", TypeMessageCreated, s.topic, err)
	}

	s.log.Debug("event published",
		zap.String("type", TypeMessageCreated),
		zap.Int64("message_id", evt.MessageID),
	)
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// Encode wraps data in an Envelope and marshals it.
func Encode(eventType string, data any) ([]byte, error) {
	b, err := json.Marshal(Envelope{Type: eventType, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return b, nil
}
