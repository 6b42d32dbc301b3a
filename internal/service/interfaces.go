// Package service defines the interfaces shared between bankflow components.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/bankflow/internal/model"
)

// Snapshot is the durable client-side copy of the user's data.
type Snapshot struct {
	LastUpdated  time.Time              `json:"-"`
	Profile      *model.UserProfile     `json:"userProfile"`
	Transactions []model.Transaction    `json:"transactions"`
	Categories   []model.CustomCategory `json:"customCategories"`
}

// StoredCredentials is the persisted token pair.
type StoredCredentials struct {
	Expiry time.Time
	model.Credentials
}

// Marker keys for durable timestamps.
const (
	MarkerCooldownUntil = "sync_cooldown_until"
	MarkerLastAutoSync  = "last_auto_sync"
)

// SnapshotStore persists the cached snapshot. UpdateSnapshot runs fn against
// the full stored object and writes the full object back atomically; it is
// the only way to mutate a snapshot.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	UpdateSnapshot(ctx context.Context, fn func(*Snapshot) error) error
	ClearSnapshot(ctx context.Context) error
}

// MarkerStore persists named timestamps.
type MarkerStore interface {
	GetMarker(ctx context.Context, key string) (time.Time, bool, error)
	SetMarker(ctx context.Context, key string, at time.Time) error
	DeleteMarker(ctx context.Context, key string) error
}

// CredentialStore persists the session tokens.
type CredentialStore interface {
	LoadCredentials(ctx context.Context) (*StoredCredentials, error)
	SaveCredentials(ctx context.Context, creds StoredCredentials) error
	ClearCredentials(ctx context.Context) error
}

// InstitutionStore remembers recently used institutions.
type InstitutionStore interface {
	TouchInstitution(ctx context.Context, id string) error
	RecentInstitutions(ctx context.Context) ([]string, error)
}

// Storage is the complete durable client state.
type Storage interface {
	SnapshotStore
	MarkerStore
	CredentialStore
	InstitutionStore

	Migrate(ctx context.Context) error
	Close() error
}

// Clock abstracts time for components with time-based rules.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
