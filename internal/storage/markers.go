package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetMarker returns the timestamp stored under key. The boolean is false when
// the marker is absent.
func (s *SQLiteStorage) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	if err := validateContext(ctx); err != nil {
		return time.Time{}, false, err
	}
	if err := validateString(key, "key"); err != nil {
		return time.Time{}, false, err
	}

	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT at_ms FROM markers WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read marker %s: %w", key, err)
	}
	return time.UnixMilli(ms), true, nil
}

// SetMarker stores at under key, replacing any previous value.
func (s *SQLiteStorage) SetMarker(ctx context.Context, key string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markers (key, at_ms) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET at_ms = excluded.at_ms
	`, key, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write marker %s: %w", key, err)
	}
	return nil
}

// DeleteMarker removes the marker stored under key. Removing an absent marker is not an error.
func (s *SQLiteStorage) DeleteMarker(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete marker %s: %w", key, err)
	}
	return nil
}
