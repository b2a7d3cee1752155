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

type sqliteChannelRepo struct {
	db database.TxQuerier
}

// NewSQLiteChannelRepo is the constructor.
func NewSQLiteChannelRepo(db database.TxQuerier) ChannelRepository {
	return &sqliteChannelRepo{db: db}
}

func (r *sqliteChannelRepo) Create(ctx context.Context, channel *models.Channel) error {
	query := `
		INSERT INTO channels (server_id, name, created_at)
		VALUES (?, ?, ?)
		RETURNING id`

	now := time.Now().UTC().Truncate(time.Microsecond)
	err := r.db.QueryRowContext(ctx, query, channel.ServerID, channel.Name, toMicros(now)).Scan(&channel.ID)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	channel.CreatedAt = now
	return nil
}

func (r *sqliteChannelRepo) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	query := `SELECT id, server_id, name, created_at FROM channels WHERE id = ?`

	ch := &models.Channel{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&ch.ID, &ch.ServerID, &ch.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: channel %d", pkg.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel by id: %w", err)
	}

	ch.CreatedAt = fromMicros(created)
	return ch, nil
}

func (r *sqliteChannelRepo) ListByServer(ctx context.Context, serverID int64) ([]models.Channel, error) {
	query := `
		SELECT id, server_id, name, created_at
		FROM channels WHERE server_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		var (
			ch      models.Channel
			created int64
		)
		if err := rows.Scan(&ch.ID, &ch.ServerID, &ch.Name, &created); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		ch.CreatedAt = fromMicros(created)
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}

	return channels, nil
}

func (r *sqliteChannelRepo) Update(ctx context.Context, channel *models.Channel) error {
	result, err := r.db.ExecContext(ctx, `UPDATE channels SET name = ? WHERE id = ?`, channel.Name, channel.ID)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return expectAffected(result, "channel", channel.ID)
}

func (r *sqliteChannelRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return expectAffected(result, "channel", id)
}
