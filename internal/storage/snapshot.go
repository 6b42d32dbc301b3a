package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/service"
)

// LoadSnapshot returns the stored snapshot, or nil when none has been written.
func (s *SQLiteStorage) LoadSnapshot(ctx context.Context) (*service.Snapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return loadSnapshot(ctx, s.db)
}

// UpdateSnapshot reads the whole snapshot, applies fn, and writes the whole
// snapshot back in a single transaction. fn receives an empty snapshot when
// none exists. Returning an error from fn aborts the write.
func (s *SQLiteStorage) UpdateSnapshot(ctx context.Context, fn func(*service.Snapshot) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: fn", ErrNilParameter)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		if snap == nil {
			snap = &service.Snapshot{}
		}

		if err := fn(snap); err != nil {
			return err
		}
		if snap.LastUpdated.IsZero() {
			snap.LastUpdated = time.Now()
		}

		return saveSnapshot(ctx, tx, snap)
	})
}

// ClearSnapshot removes the stored snapshot.
func (s *SQLiteStorage) ClearSnapshot(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshot`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, q queryable) (*service.Snapshot, error) {
	var (
		txJSON, catJSON string
		profileJSON     sql.NullString
		lastUpdated     int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT transactions, categories, profile, last_updated
		FROM snapshot WHERE id = 1
	`).Scan(&txJSON, &catJSON, &profileJSON, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := &service.Snapshot{LastUpdated: time.UnixMilli(lastUpdated)}
	if err := json.Unmarshal([]byte(txJSON), &snap.Transactions); err != nil {
		return nil, fmt.Errorf("failed to decode cached transactions: %w", err)
	}
	if err := json.Unmarshal([]byte(catJSON), &snap.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode cached categories: %w", err)
	}
	if profileJSON.Valid && profileJSON.String != "" {
		var profile model.UserProfile
		if err := json.Unmarshal([]byte(profileJSON.String), &profile); err != nil {
			return nil, fmt.Errorf("failed to decode cached profile: %w", err)
		}
		snap.Profile = &profile
	}
	return snap, nil
}

func saveSnapshot(ctx context.Context, q queryable, snap *service.Snapshot) error {
	transactions := snap.Transactions
	if transactions == nil {
		transactions = []model.Transaction{}
	}
	categories := snap.Categories
	if categories == nil {
		categories = []model.CustomCategory{}
	}

	txJSON, err := json.Marshal(transactions)
	if err != nil {
		return fmt.Errorf("failed to encode transactions: %w", err)
	}
	catJSON, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	var profile sql.NullString
	if snap.Profile != nil {
		data, err := json.Marshal(snap.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		profile = sql.NullString{String: string(data), Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO snapshot (id, transactions, categories, profile, last_updated)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transactions = excluded.transactions,
			categories = excluded.categories,
			profile = excluded.profile,
			last_updated = excluded.last_updated
	`, string(txJSON), string(catJSON), profile, snap.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
