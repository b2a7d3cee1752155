package repository

import (
	"context"
	"time"

	"github.com/akinalp/corkboard/models"
)

// MessageRepository is the append-only message store.
//
// Pages are returned oldest first. Within a page, messages sharing a
// timestamp are ordered by id. A page never splits messages that share a
// timestamp, so it can hold more than limit messages when its oldest
// timestamp is shared.
type MessageRepository interface {
	// Create assigns message.ID and message.CreatedAt. CreatedAt is the
	// later of now and one microsecond past the channel's newest message,
	// so timestamps strictly increase per channel. A channel deleted
	// concurrently is pkg.ErrNotFound.
	Create(ctx context.Context, message *models.Message) error

	// GetRecent returns the newest limit messages of the channel.
	GetRecent(ctx context.Context, channelID int64, limit int) ([]models.Message, error)

	// GetBefore returns up to limit messages created strictly before the
	// given time, the newest of those first selected then returned oldest
	// first.
	GetBefore(ctx context.Context, channelID int64, before time.Time, limit int) ([]models.Message, error)
}
