package repository

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/akinalp/corkboard/database"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
)

type sqliteMessageRepo struct {
	db database.TxQuerier
}

// NewSQLiteMessageRepo is the constructor.
func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

func (r *sqliteMessageRepo) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (channel_id, user_id, content, created_at)
		SELECT ?, ?, ?, MAX(?, COALESCE(
			(SELECT MAX(created_at) FROM messages WHERE channel_id = ?), 0) + 1)
		RETURNING id, created_at`

	var created int64
	err := r.db.QueryRowContext(ctx, query,
		message.ChannelID, message.UserID, message.Content,
		toMicros(time.Now()), message.ChannelID,
	).Scan(&message.ID, &created)
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: channel %d", pkg.ErrNotFound, message.ChannelID)
	}
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	message.CreatedAt = fromMicros(created)
	return nil
}

func (r *sqliteMessageRepo) GetRecent(ctx context.Context, channelID int64, limit int) ([]models.Message, error) {
	return r.page(ctx, channelID, math.MaxInt64, limit)
}

func (r *sqliteMessageRepo) GetBefore(ctx context.Context, channelID int64, before time.Time, limit int) ([]models.Message, error) {
	return r.page(ctx, channelID, toMicros(before), limit)
}

// page selects the newest limit messages older than beforeMicros, then
// widens the page to every message sharing the oldest selected timestamp.
// A timestamp-only cursor taken from the page's first message can then
// never skip a message.
func (r *sqliteMessageRepo) page(ctx context.Context, channelID, beforeMicros int64, limit int) ([]models.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.user_id, m.content, m.created_at, u.display_name
		FROM messages m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ? AND m.created_at < ?
		  AND m.created_at >= (
			SELECT MIN(created_at) FROM (
				SELECT created_at FROM messages
				WHERE channel_id = ? AND created_at < ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?))
		ORDER BY m.created_at DESC, m.id DESC`

	return r.queryPage(ctx, query, channelID, beforeMicros, channelID, beforeMicros, limit)
}

// queryPage scans a newest-first result and returns it oldest first.
func (r *sqliteMessageRepo) queryPage(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			m       models.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Content, &created, &m.SenderDisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.CreatedAt = fromMicros(created)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
