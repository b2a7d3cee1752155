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

type sqliteServerRepo struct {
	db database.TxQuerier
}

// NewSQLiteServerRepo is the constructor.
func NewSQLiteServerRepo(db database.TxQuerier) ServerRepository {
	return &sqliteServerRepo{db: db}
}

const serverColumns = `s.id, s.name, s.description, s.icon_url, s.owner_id, s.privacy_level, s.created_at, s.last_message_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner, extra ...any) (*models.Server, error) {
	s := &models.Server{}
	var (
		icon    sql.NullString
		created int64
		lastMsg sql.NullInt64
	)
	dest := append([]any{&s.ID, &s.Name, &s.Description, &icon, &s.OwnerID, &s.PrivacyLevel, &created, &lastMsg}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if icon.Valid {
		s.IconURL = &icon.String
	}
	s.CreatedAt = fromMicros(created)
	s.LastMessageAt = timePtr(lastMsg)
	return s, nil
}

func (r *sqliteServerRepo) Create(ctx context.Context, server *models.Server) error {
	query := `
		INSERT INTO servers (name, description, icon_url, owner_id, privacy_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := r.db.QueryRowContext(ctx, query,
		server.Name, server.Description, server.IconURL, server.OwnerID,
		server.PrivacyLevel, toMicros(now),
	).Scan(&server.ID)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	server.CreatedAt = now
	return nil
}

func (r *sqliteServerRepo) GetByID(ctx context.Context, id int64) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers s WHERE s.id = ?`

	s, err := scanServer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: server %d", pkg.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return s, nil
}

func (r *sqliteServerRepo) ListByUser(ctx context.Context, userID string) ([]models.ServerWithRole, error) {
	query := `
		SELECT ` + serverColumns + `, m.role
		FROM servers s
		INNER JOIN server_members m ON m.server_id = s.id
		WHERE m.user_id = ?
		ORDER BY COALESCE(s.last_message_at, s.created_at) DESC, s.id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers for user: %w", err)
	}
	defer rows.Close()

	servers := make([]models.ServerWithRole, 0)
	for rows.Next() {
		var role models.Role
		s, err := scanServer(rows, &role)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server row: %w", err)
		}
		servers = append(servers, models.ServerWithRole{Server: *s, Role: role})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating server rows: %w", err)
	}

	return servers, nil
}

func (r *sqliteServerRepo) ListPublic(ctx context.Context, limit int) ([]models.Server, error) {
	query := `
		SELECT ` + serverColumns + `
		FROM servers s
		WHERE s.privacy_level = ?
		ORDER BY COALESCE(s.last_message_at, s.created_at) DESC, s.id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, models.PrivacyPublic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list public servers: %w", err)
	}
	defer rows.Close()

	servers := make([]models.Server, 0)
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server row: %w", err)
		}
		servers = append(servers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating server rows: %w", err)
	}

	return servers, nil
}

func (r *sqliteServerRepo) Update(ctx context.Context, server *models.Server) error {
	query := `
		UPDATE servers SET name = ?, description = ?, icon_url = ?, privacy_level = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		server.Name, server.Description, server.IconURL, server.PrivacyLevel, server.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update server: %w", err)
	}
	return expectAffected(result, "server", server.ID)
}

func (r *sqliteServerRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	return expectAffected(result, "server", id)
}

func (r *sqliteServerRepo) TouchLastMessage(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE servers SET last_message_at = ?
		WHERE id = ? AND (last_message_at IS NULL OR last_message_at < ?)`

	us := toMicros(at)
	if _, err := r.db.ExecContext(ctx, query, us, id, us); err != nil {
		return fmt.Errorf("failed to touch server last_message_at: %w", err)
	}
	return nil
}

// expectAffected turns a zero-row UPDATE/DELETE into ErrNotFound.
func expectAffected(result sql.Result, what string, id any) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %v", pkg.ErrNotFound, what, id)
	}
	return nil
}
