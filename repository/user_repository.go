package repository

import (
	"context"

	"github.com/akinalp/corkboard/models"
)

// UserRepository stores the local read model of authenticated users.
type UserRepository interface {
	// Upsert inserts the user or refreshes its names, keeping created_at.
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}
