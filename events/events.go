// Package events publishes domain events for downstream consumers
// (search indexing, notifications, analytics). Delivery is best effort:
// the chat path never waits on or fails because of a sink.
package events

import (
	"context"
	"time"
)

// TypeMessageCreated is the type tag of MessageCreated envelopes.
const TypeMessageCreated = "message.created"

// MessageCreated is emitted after a message is persisted.
type MessageCreated struct {
	MessageID         int64     `json:"message_id"`
	ServerID          int64     `json:"server_id"`
	ChannelID         int64     `json:"channel_id"`
	UserID            string    `json:"user_id"`
	SenderDisplayName string    `json:"sender_display_name"`
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestamp"`
}

// Envelope is the wire form of every event.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Sink receives domain events.
type Sink interface {
	MessageCreated(ctx context.Context, evt MessageCreated) error
	Close() error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) MessageCreated(context.Context, MessageCreated) error { return nil }
func (NopSink) Close() error                                         { return nil }
