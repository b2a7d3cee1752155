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

type sqliteUserRepo struct {
	db database.TxQuerier
}

// NewSQLiteUserRepo is the constructor.
func NewSQLiteUserRepo(db database.TxQuerier) UserRepository {
	return &sqliteUserRepo{db: db}
}

func (r *sqliteUserRepo) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name
		RETURNING created_at`

	var created int64
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Username, user.DisplayName, toMicros(time.Now()),
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	user.CreatedAt = fromMicros(created)
	return nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, display_name, created_at FROM users WHERE id = ?`

	u := &models.User{}
	var created int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.DisplayName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.CreatedAt = fromMicros(created)
	return u, nil
}
