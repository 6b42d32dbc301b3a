package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MaxRecentInstitutions bounds the recently used institutions list.
const MaxRecentInstitutions = 6

// TouchInstitution marks an institution as just used and trims the list to
// MaxRecentInstitutions entries.
func (s *SQLiteStorage) TouchInstitution(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "institution id"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(used_at), 0) FROM recent_institutions`).Scan(&next); err != nil {
			return fmt.Errorf("failed to read recent institutions: %w", err)
		}
		// Strictly increasing even when two touches share a millisecond.
		now := time.Now().UnixMilli()
		if now <= next {
			now = next + 1
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recent_institutions (institution_id, used_at) VALUES (?, ?)
			ON CONFLICT(institution_id) DO UPDATE SET used_at = excluded.used_at
		`, id, now); err != nil {
			return fmt.Errorf("failed to record institution: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM recent_institutions
			WHERE institution_id NOT IN (
				SELECT institution_id FROM recent_institutions
				ORDER BY used_at DESC LIMIT ?
			)
		`, MaxRecentInstitutions); err != nil {
			return fmt.Errorf("failed to trim recent institutions: %w", err)
		}
		return nil
	})
}

// RecentInstitutions returns institution ids, most recently used first.
func (s *SQLiteStorage) RecentInstitutions(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT institution_id FROM recent_institutions
		ORDER BY used_at DESC LIMIT ?
	`, MaxRecentInstitutions)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent institutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
