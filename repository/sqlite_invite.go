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

type sqliteInviteRepo struct {
	db database.TxQuerier
}

// NewSQLiteInviteRepo is the constructor.
func NewSQLiteInviteRepo(db database.TxQuerier) InviteRepository {
	return &sqliteInviteRepo{db: db}
}

const inviteColumns = `id, server_id, created_by, invited_user_id, code, created_at, expires_at, one_time_use, used, times_used`

func scanInvite(row scanner) (*models.Invite, error) {
	inv := &models.Invite{}
	var (
		invited sql.NullString
		created int64
		expires sql.NullInt64
	)
	if err := row.Scan(
		&inv.ID, &inv.ServerID, &inv.CreatedBy, &invited, &inv.Code,
		&created, &expires, &inv.OneTimeUse, &inv.Used, &inv.TimesUsed,
	); err != nil {
		return nil, err
	}
	if invited.Valid {
		inv.InvitedUserID = &invited.String
	}
	inv.CreatedAt = fromMicros(created)
	inv.ExpiresAt = timePtr(expires)
	return inv, nil
}

func (r *sqliteInviteRepo) Create(ctx context.Context, invite *models.Invite) error {
	query := `
		INSERT INTO server_invites (server_id, created_by, invited_user_id, code, created_at, expires_at, one_time_use)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := r.db.QueryRowContext(ctx, query,
		invite.ServerID, invite.CreatedBy, invite.InvitedUserID, invite.Code,
		toMicros(now), nullMicros(invite.ExpiresAt), invite.OneTimeUse,
	).Scan(&invite.ID)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("invite code %s: %w", invite.Code, pkg.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}

	invite.CreatedAt = now
	return nil
}

func (r *sqliteInviteRepo) GetByCode(ctx context.Context, code string) (*models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM server_invites WHERE code = ?`

	inv, err := scanInvite(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: invite %s", pkg.ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

func (r *sqliteInviteRepo) ListByServer(ctx context.Context, serverID int64) ([]models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM server_invites WHERE server_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	invites := make([]models.Invite, 0)
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}

	return invites, nil
}

func (r *sqliteInviteRepo) Delete(ctx context.Context, serverID, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM server_invites WHERE id = ? AND server_id = ?`, id, serverID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	return expectAffected(result, "invite", id)
}

func (r *sqliteInviteRepo) ConsumeUse(ctx context.Context, id int64) error {
	query := `
		UPDATE server_invites
		SET used = 1, times_used = times_used + 1
		WHERE id = ? AND (one_time_use = 0 OR used = 0)`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to consume invite: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: invite already used", pkg.ErrConflict)
	}
	return nil
}
