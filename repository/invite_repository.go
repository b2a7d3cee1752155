package repository

import (
	"context"

	"github.com/akinalp/corkboard/models"
)

// InviteRepository persists server invites. Codes are unique ignoring
// case.
type InviteRepository interface {
	// Create fills invite.ID and invite.CreatedAt. A code collision is
	// reported as pkg.ErrAlreadyExists.
	Create(ctx context.Context, invite *models.Invite) error
	GetByCode(ctx context.Context, code string) (*models.Invite, error)
	ListByServer(ctx context.Context, serverID int64) ([]models.Invite, error)
	Delete(ctx context.Context, serverID, id int64) error

	// ConsumeUse records one redemption. For a one-time invite it only
	// succeeds while the invite is unused; a lost race returns
	// pkg.ErrConflict.
	ConsumeUse(ctx context.Context, id int64) error
}
