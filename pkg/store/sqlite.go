// Package store provides sqlite-backed persistence for preferences,
// the last destination and the directions response cache.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/luizidebook/morro-digital-sub002/pkg/db"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key = ?`, key)

	var val []byte
	if err := row.Scan(&val); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP`,
		key, val)
	return err
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM persistent_state WHERE key = ?`, key)

	var val string
	if err := row.Scan(&val); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("state read failed", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persistent_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, val)
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM persistent_state WHERE key = ?`, key)
	return err
}
