// Package storetest opens throwaway SQLite databases for tests.
package storetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"incident-desk/config"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

func Open(t testing.TB) *sql.DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "test.db")}
	logger := utils.NewDiscardLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return db
}

func CreateUser(t testing.TB, db *sql.DB, username, email string) *store.User {
	t.Helper()
	u := &store.User{Username: username, Email: email, PasswordHash: "h", Salt: "s"}
	if _, err := store.NewUsersStore(db).Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}
