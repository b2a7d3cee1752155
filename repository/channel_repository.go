package repository

import (
	"context"

	"github.com/akinalp/corkboard/models"
)

// ChannelRepository persists channels.
type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	ListByServer(ctx context.Context, serverID int64) ([]models.Channel, error)
	Update(ctx context.Context, channel *models.Channel) error
	Delete(ctx context.Context, id int64) error
}
