package repository

import (
	"context"
	"time"

	"github.com/akinalp/corkboard/models"
)

// ServerRepository persists servers.
type ServerRepository interface {
	// Create fills server.ID and server.CreatedAt.
	Create(ctx context.Context, server *models.Server) error
	GetByID(ctx context.Context, id int64) (*models.Server, error)

	// ListByUser returns the servers userID belongs to, with their role,
	// most recently active first.
	ListByUser(ctx context.Context, userID string) ([]models.ServerWithRole, error)

	// ListPublic returns public servers, most recently active first.
	ListPublic(ctx context.Context, limit int) ([]models.Server, error)

	Update(ctx context.Context, server *models.Server) error
	Delete(ctx context.Context, id int64) error

	// TouchLastMessage advances last_message_at; it never moves it backwards.
	TouchLastMessage(ctx context.Context, id int64, at time.Time) error
}
