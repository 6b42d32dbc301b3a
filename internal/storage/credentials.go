package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/service"
)

// LoadCredentials returns the stored tokens, or common.ErrNotLoggedIn.
func (s *SQLiteStorage) LoadCredentials(ctx context.Context) (*service.StoredCredentials, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		creds     service.StoredCredentials
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at
		FROM credentials WHERE id = 1
	`).Scan(&creds.AccessToken, &creds.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if expiresAt > 0 {
		creds.Expiry = time.UnixMilli(expiresAt)
	}
	return &creds, nil
}

// SaveCredentials replaces the stored tokens.
func (s *SQLiteStorage) SaveCredentials(ctx context.Context, creds service.StoredCredentials) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(creds.AccessToken, "access token"); err != nil {
		return err
	}

	var expiresAt int64
	if !creds.Expiry.IsZero() {
		expiresAt = creds.Expiry.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, creds.AccessToken, creds.RefreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// ClearCredentials forgets the stored tokens.
func (s *SQLiteStorage) ClearCredentials(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
