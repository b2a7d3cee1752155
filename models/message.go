package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength bounds message text, in characters.
const MaxMessageLength = 5000

// Message is one persisted chat line. Messages are append-only.
// CreatedAt is assigned by the store and strictly increases per channel.
type Message struct {
	ID                int64     `json:"id"`
	ChannelID         int64     `json:"channel_id"`
	UserID            string    `json:"user_id"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
	SenderDisplayName string    `json:"-"`
}

// MessageDTO is the client-facing shape of a message, used both for
// receive_message broadcasts and for backfill pages.
type MessageDTO struct {
	Text              string    `json:"text"`
	SenderDisplayName string    `json:"sender_display_name"`
	Timestamp         time.Time `json:"timestamp"`
}

// ToDTO projects m onto the client-facing shape.
func (m *Message) ToDTO() MessageDTO {
	return MessageDTO{
		Text:              m.Content,
		SenderDisplayName: m.SenderDisplayName,
		Timestamp:         m.CreatedAt,
	}
}

// ToDTOs projects a page, never returning nil.
func ToDTOs(messages []Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].ToDTO())
	}
	return out
}

// SendMessageRequest is the body of POST /api/channels/{channelId}/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ValidateMessageText rejects blank or over-long text.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message text cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return fmt.Errorf("message text must be at most %d characters", MaxMessageLength)
	}
	return nil
}
