package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
)

type sqliteMembershipRepo struct {
	db database.TxQuerier
}

// NewSQLiteMembershipRepo is the constructor.
func NewSQLiteMembershipRepo(db database.TxQuerier) MembershipRepository {
	return &sqliteMembershipRepo{db: db}
}

func (r *sqliteMembershipRepo) Create(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO server_members (server_id, user_id, role, joined_at, invite_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := r.db.QueryRowContext(ctx, query,
		m.ServerID, m.UserID, m.Role, toMicros(now), m.InviteID,
	).Scan(&m.ID)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("membership of %s in server %d: %w", m.UserID, m.ServerID, pkg.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	m.JoinedAt = now
	return nil
}

func (r *sqliteMembershipRepo) Get(ctx context.Context, serverID int64, userID string) (*models.Membership, error) {
	query := `
		SELECT id, server_id, user_id, role, joined_at, invite_id
		FROM server_members WHERE server_id = ? AND user_id = ?`

	m := &models.Membership{}
	var (
		joined   int64
		inviteID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, serverID, userID).Scan(
		&m.ID, &m.ServerID, &m.UserID, &m.Role, &joined, &inviteID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: membership", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.JoinedAt = fromMicros(joined)
	if inviteID.Valid {
		m.InviteID = &inviteID.Int64
	}
	return m, nil
}

func (r *sqliteMembershipRepo) GetRoleInChannel(ctx context.Context, channelID int64, userID string) (int64, models.Role, error) {
	query := `
		SELECT c.server_id, m.role
		FROM channels c
		INNER JOIN server_members m ON m.server_id = c.server_id
		WHERE c.id = ? AND m.user_id = ?`

	var (
		serverID int64
		role     models.Role
	)
	err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&serverID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: membership for channel %d", pkg.ErrNotFound, channelID)
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to resolve channel membership: %w", err)
	}
	return serverID, role, nil
}

func (r *sqliteMembershipRepo) ListByServer(ctx context.Context, serverID int64) ([]models.MemberWithUser, error) {
	query := `
		SELECT m.id, m.server_id, m.user_id, m.role, m.joined_at, m.invite_id,
		       u.username, u.display_name
		FROM server_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.server_id = ?
		ORDER BY CASE m.role WHEN 'owner' THEN 0 WHEN 'moderator' THEN 1 ELSE 2 END,
		         u.display_name COLLATE NOCASE, m.id`

	rows, err := r.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.MemberWithUser, 0)
	for rows.Next() {
		var (
			mw       models.MemberWithUser
			joined   int64
			inviteID sql.NullInt64
		)
		if err := rows.Scan(
			&mw.ID, &mw.ServerID, &mw.UserID, &mw.Role, &joined, &inviteID,
			&mw.Username, &mw.DisplayName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		mw.JoinedAt = fromMicros(joined)
		if inviteID.Valid {
			id := inviteID.Int64
			mw.InviteID = &id
		}
		members = append(members, mw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

func (r *sqliteMembershipRepo) CountByServer(ctx context.Context, serverID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_members WHERE server_id = ?`, serverID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

func (r *sqliteMembershipRepo) UpdateRole(ctx context.Context, serverID int64, userID string, role models.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE server_members SET role = ? WHERE server_id = ? AND user_id = ?`,
		role, serverID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return expectAffected(result, "member", userID)
}

func (r *sqliteMembershipRepo) Delete(ctx context.Context, serverID int64, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM server_members WHERE server_id = ? AND user_id = ?`,
		serverID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return expectAffected(result, "member", userID)
}
