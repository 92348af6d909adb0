// Package testutil provides a migrated database for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/modu-ai/moai-rank/internal/adapters/sqldb"
	"github.com/modu-ai/moai-rank/internal/config"
	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/migrate"
)

// NewDB opens a libsql database file in a temp dir and applies all migrations.
func NewDB(t testing.TB) *sqldb.DB {
	t.Helper()

	ctx := context.Background()
	db, err := sqldb.Open(ctx, config.Database{
		URL:          "file:" + filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		ConnLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate.RunAll(ctx, db, nil); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// SeedUser inserts a user with a deterministic salt and returns it.
func SeedUser(t testing.TB, db *sqldb.DB, username string, private bool) *domain.User {
	t.Helper()

	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	u := &domain.User{
		ID:           "user-" + username,
		Username:     username,
		DisplayName:  username,
		PrivacyMode:  private,
		APIKeyHash:   "hash-" + username,
		APIKeyPrefix: "moai_rank_" + username,
		UserSalt:     "salt-" + username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := sqldb.NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("Failed to seed user %s: %v", username, err)
	}
	return u
}
