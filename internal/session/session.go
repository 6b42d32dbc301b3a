// Package session establishes and tears down an authenticated session and
// kicks off the initial data population without blocking the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/service"
	"github.com/Veraticus/bankflow/internal/snapshot"
)

// DefaultAutoSyncEvery is the minimum gap between dashboard-triggered auto syncs.
const DefaultAutoSyncEvery = 5 * time.Minute

// ErrNoToken is returned when the backend accepts credentials but issues no token.
var ErrNoToken = errors.New("backend returned no access token")

// Ledger is the transaction store the session populates.
type Ledger interface {
	Fetch(ctx context.Context) ([]model.Transaction, error)
	ForceRefresh(ctx context.Context) error
	RefreshCategories(ctx context.Context) ([]model.CustomCategory, error)
	Reset(ctx context.Context) error
}

// AutoSyncer asks the backend to import every stale account.
type AutoSyncer interface {
	AutoSync(ctx context.Context, minAgeMinutes int) (*model.AutoSyncResult, error)
}

// Deps are the collaborators of a Session.
type Deps struct {
	Auth        api.Auth
	Credentials service.CredentialStore
	Markers     service.MarkerStore
	Cache       *snapshot.Cache
	Ledger      Ledger
	Syncer      AutoSyncer
	Clock       service.Clock
}

// Options tunes a Session.
type Options struct {
	// AutoSyncEvery throttles MaybeAutoSync.
	AutoSyncEvery time.Duration
	// MinAgeMinutes is passed to the backend's auto sync.
	MinAgeMinutes int
}

// Session runs login, logout and the background bootstrap that follows a login.
type Session struct {
	deps Deps
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a Session.
func New(deps Deps, opts Options) *Session {
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}
	if opts.AutoSyncEvery <= 0 {
		opts.AutoSyncEvery = DefaultAutoSyncEvery
	}
	s := &Session{deps: deps, opts: opts}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Login authenticates, stores the token pair and profile, and starts Bootstrap.
func (s *Session) Login(ctx context.Context, email, password string) (*model.UserProfile, error) {
	resp, err := s.deps.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return s.establish(ctx, resp)
}

// Register creates an account and continues as Login does.
func (s *Session) Register(ctx context.Context, email, password string) (*model.UserProfile, error) {
	resp, err := s.deps.Auth.Register(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return s.establish(ctx, resp)
}

func (s *Session) establish(ctx context.Context, resp *api.AuthResponse) (*model.UserProfile, error) {
	if resp.AccessToken == "" {
		return nil, ErrNoToken
	}

	creds := service.StoredCredentials{
		Credentials: resp.Credentials(),
		Expiry:      api.TokenExpiry(resp.AccessToken),
	}
	if err := s.deps.Credentials.SaveCredentials(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	profile := resp.User
	if err := s.storeProfile(ctx, &profile); err != nil {
		slog.Warn("Failed to cache profile", "error", err)
	}

	slog.Info("Logged in", "email", profile.Email)
	s.Bootstrap()
	return &profile, nil
}

// Bootstrap populates local data in the background and returns at once:
// a cached-or-network fetch followed by one forced refresh, a
// fire-and-forget auto sync, and the custom categories. Wait joins them.
func (s *Session) Bootstrap() {
	s.goBackground(func(ctx context.Context) {
		if _, err := s.deps.Ledger.Fetch(ctx); err != nil {
			slog.Warn("Initial transaction fetch failed", "error", err)
		}
		if err := s.deps.Ledger.ForceRefresh(ctx); err != nil {
			slog.Warn("Transaction refresh failed", "error", err)
		}
	})

	s.goBackground(s.autoSync)

	s.goBackground(func(ctx context.Context) {
		if _, err := s.deps.Ledger.RefreshCategories(ctx); err != nil {
			slog.Warn("Category fetch failed", "error", err)
		}
	})
}

// ThrottledError is returned by Sync when the last auto sync is too recent.
type ThrottledError struct {
	Last  time.Time
	Every time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("auto sync ran at %s; next allowed after %s", e.Last.Format(time.RFC3339), e.Every)
}

// UserMessage returns the text shown to users.
func (e *ThrottledError) UserMessage() string {
	return "Bank accounts were synced moments ago. Use --force to sync anyway."
}

// MaybeAutoSync starts an auto sync in the background when more than the
// configured interval has passed since the last attempt. It reports
// whether one was started.
func (s *Session) MaybeAutoSync(ctx context.Context) (bool, error) {
	if err := s.checkThrottle(ctx); err != nil {
		var throttled *ThrottledError
		if errors.As(err, &throttled) {
			slog.Debug("Auto sync throttled", "last", throttled.Last)
			return false, nil
		}
		return false, err
	}

	s.stampAutoSync(ctx)
	s.goBackground(s.runAutoSync)
	return true, nil
}

// Sync runs an auto sync in the foreground and returns the jobs it started.
// Unless force is set it is throttled like MaybeAutoSync.
func (s *Session) Sync(ctx context.Context, force bool) (*model.AutoSyncResult, error) {
	if !force {
		if err := s.checkThrottle(ctx); err != nil {
			return nil, err
		}
	}
	s.stampAutoSync(ctx)
	return s.deps.Syncer.AutoSync(ctx, s.opts.MinAgeMinutes)
}

// LastAutoSync returns when an auto sync was last attempted.
func (s *Session) LastAutoSync(ctx context.Context) (time.Time, bool, error) {
	return s.deps.Markers.GetMarker(ctx, service.MarkerLastAutoSync)
}

func (s *Session) checkThrottle(ctx context.Context) error {
	last, ok, err := s.LastAutoSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last auto sync: %w", err)
	}
	if ok && s.deps.Clock.Now().Sub(last) <= s.opts.AutoSyncEvery {
		return &ThrottledError{Last: last, Every: s.opts.AutoSyncEvery}
	}
	return nil
}

func (s *Session) autoSync(ctx context.Context) {
	s.stampAutoSync(ctx)
	s.runAutoSync(ctx)
}

func (s *Session) stampAutoSync(ctx context.Context) {
	if err := s.deps.Markers.SetMarker(ctx, service.MarkerLastAutoSync, s.deps.Clock.Now()); err != nil {
		slog.Warn("Failed to record auto sync", "error", err)
	}
}

// runAutoSync never surfaces errors; a cooldown or network failure only
// means nothing was started.
func (s *Session) runAutoSync(ctx context.Context) {
	res, err := s.deps.Syncer.AutoSync(ctx, s.opts.MinAgeMinutes)
	if err != nil {
		slog.Debug("Auto sync skipped", "error", err)
		return
	}
	slog.Debug("Auto sync started", "jobs", res.Count)
}

// Restore verifies stored credentials. A token the backend rejects is
// forgotten and ErrUnauthorized returned.
func (s *Session) Restore(ctx context.Context) (*model.UserProfile, error) {
	if _, err := s.deps.Credentials.LoadCredentials(ctx); err != nil {
		return nil, err
	}

	profile, err := s.deps.Auth.Verify(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		if clearErr := s.deps.Credentials.ClearCredentials(ctx); clearErr != nil {
			slog.Warn("Failed to clear rejected credentials", "error", clearErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}

	if err := s.storeProfile(ctx, profile); err != nil {
		slog.Warn("Failed to cache profile", "error", err)
	}
	return profile, nil
}

// Profile returns the cached profile, or nil when the snapshot has none.
func (s *Session) Profile(ctx context.Context) (*model.UserProfile, error) {
	snap, err := s.deps.Cache.Load(ctx)
	if err != nil || snap == nil {
		return nil, err
	}
	return snap.Profile, nil
}

// Logout revokes the refresh token when possible and always forgets the
// credentials and the local snapshot.
func (s *Session) Logout(ctx context.Context) error {
	s.stopBackground()

	creds, err := s.deps.Credentials.LoadCredentials(ctx)
	switch {
	case errors.Is(err, common.ErrNotLoggedIn):
	case err != nil:
		slog.Warn("Failed to read credentials", "error", err)
	default:
		if err := s.deps.Auth.Logout(ctx, creds.RefreshToken); err != nil {
			slog.Warn("Server logout failed", "error", err)
		}
	}

	if err := s.deps.Credentials.ClearCredentials(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	if err := s.deps.Ledger.Reset(ctx); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	slog.Info("Logged out")
	return nil
}

// Wait blocks until background bootstrap work has finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Close cancels background work and waits for it.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.bg.Wait()
}

func (s *Session) storeProfile(ctx context.Context, profile *model.UserProfile) error {
	return s.deps.Cache.Update(ctx, func(snap *service.Snapshot) error {
		snap.Profile = profile
		return nil
	})
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.mu.Lock()
	ctx := s.ctx
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		fn(ctx)
	}()
}

// stopBackground cancels work in flight and readies a fresh context for
// the next login.
func (s *Session) stopBackground() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.bg.Wait()

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()
}
