// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/akinalp/corkboard/database"
)

// Seeded fixture ids from 002_seed.sql.
const (
	SeedServerID     int64 = 1
	SeedChannelID    int64 = 1
	SeedOwnerID            = "seed-user-cpw-235"
	SeedMemberID           = "seed-user-cpw-235-2"
	SeedInviteCode         = "CPW235-TEST"
	SeedMessageCount       = 80
)

var userSeq atomic.Int64

// NewDB opens a migrated, seeded database in a temp dir, closed on cleanup.
func NewDB(t testing.TB) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "corkboard.db")
	db, err := database.New(path, database.Migrations(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t testing.TB, db *database.DB, displayName string) string {
	t.Helper()

	id := fmt.Sprintf("user-%d", userSeq.Add(1))
	_, err := db.Conn.ExecContext(context.Background(),
		`INSERT INTO users (id, username, display_name, created_at) VALUES (?, ?, ?, ?)`,
		id, id, displayName, time.Now().UnixMicro(),
	)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}
