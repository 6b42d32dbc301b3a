// Package snapshot applies the freshness window to the durable client snapshot.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/bankflow/internal/service"
)

// DefaultTTL is how long a snapshot is trusted.
const DefaultTTL = 5 * time.Minute

// Cache reads and writes the snapshot through a freshness window.
type Cache struct {
	store service.SnapshotStore
	clock service.Clock
	ttl   time.Duration
}

// New creates a Cache. A zero ttl uses DefaultTTL and a nil clock uses the wall clock.
func New(store service.SnapshotStore, clock service.Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Cache{store: store, clock: clock, ttl: ttl}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) expired(snap *service.Snapshot) bool {
	return c.clock.Now().Sub(snap.LastUpdated) > c.ttl
}

// Load returns the snapshot when it is fresh. An expired snapshot is removed
// and reads as a miss (nil, nil).
func (c *Cache) Load(ctx context.Context) (*service.Snapshot, error) {
	snap, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	if c.expired(snap) {
		slog.Debug("Snapshot expired", "age", c.clock.Now().Sub(snap.LastUpdated))
		if err := c.store.ClearSnapshot(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear expired snapshot: %w", err)
		}
		return nil, nil
	}
	return snap, nil
}

// Update applies fn to the stored snapshot and stamps it with the current
// time. An expired snapshot is replaced by an empty one before fn runs.
func (c *Cache) Update(ctx context.Context, fn func(*service.Snapshot) error) error {
	return c.store.UpdateSnapshot(ctx, func(snap *service.Snapshot) error {
		if c.expired(snap) {
			*snap = service.Snapshot{}
		}
		if err := fn(snap); err != nil {
			return err
		}
		snap.LastUpdated = c.clock.Now()
		return nil
	})
}

var errSkip = errors.New("snapshot not fresh")

// Patch applies fn only to a fresh snapshot and reports whether it did.
// Missing or expired snapshots are left alone.
func (c *Cache) Patch(ctx context.Context, fn func(*service.Snapshot) error) (bool, error) {
	err := c.store.UpdateSnapshot(ctx, func(snap *service.Snapshot) error {
		if snap.LastUpdated.IsZero() || c.expired(snap) {
			return errSkip
		}
		if err := fn(snap); err != nil {
			return err
		}
		snap.LastUpdated = c.clock.Now()
		return nil
	})
	if errors.Is(err, errSkip) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes the snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.ClearSnapshot(ctx)
}

// Age reports how old the stored snapshot is, ignoring the freshness window.
// The boolean is false when there is no snapshot.
func (c *Cache) Age(ctx context.Context) (time.Duration, bool, error) {
	snap, err := c.store.LoadSnapshot(ctx)
	if err != nil || snap == nil {
		return 0, false, err
	}
	return c.clock.Now().Sub(snap.LastUpdated), true, nil
}
