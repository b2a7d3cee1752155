package repository

import (
	"context"

	"github.com/akinalp/corkboard/models"
)

// MembershipRepository persists server memberships.
// (server_id, user_id) is unique; Create reports a duplicate as
// pkg.ErrAlreadyExists.
type MembershipRepository interface {
	Create(ctx context.Context, m *models.Membership) error
	Get(ctx context.Context, serverID int64, userID string) (*models.Membership, error)

	// GetRoleInChannel resolves the caller's role in the server that owns
	// channelID. pkg.ErrNotFound covers both a missing channel and a
	// non-member.
	GetRoleInChannel(ctx context.Context, channelID int64, userID string) (int64, models.Role, error)

	ListByServer(ctx context.Context, serverID int64) ([]models.MemberWithUser, error)
	CountByServer(ctx context.Context, serverID int64) (int, error)
	UpdateRole(ctx context.Context, serverID int64, userID string, role models.Role) error
	Delete(ctx context.Context, serverID int64, userID string) error
}
