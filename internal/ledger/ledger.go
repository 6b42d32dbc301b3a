// Package ledger keeps the local transaction collection consistent with the
// backend. Reads are served from the snapshot when it is fresh and corrected
// by an authoritative fetch; writes go to the backend first and are applied
// locally with the identifier the backend assigned.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/service"
	"github.com/Veraticus/bankflow/internal/snapshot"
)

// DefaultRefreshDelay is how long after a create or update the authoritative
// refresh runs.
const DefaultRefreshDelay = 1500 * time.Millisecond

// Backend is the part of the API the ledger needs.
type Backend interface {
	api.Transactions
	api.Categories
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRefreshDelay sets the delay of the refresh scheduled after a create or update.
func WithRefreshDelay(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.refreshDelay = d
		}
	}
}

// Ledger owns the transaction collection and its durable snapshot.
type Ledger struct {
	backend Backend
	cache   *snapshot.Cache
	coll    *Collection

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer

	categories   []model.CustomCategory
	refreshDelay time.Duration

	bg        sync.WaitGroup
	refreshMu sync.Mutex
	mu        sync.Mutex
}

// New creates a Ledger. Background work runs until Close.
func New(backend Backend, cache *snapshot.Cache, opts ...Option) *Ledger {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Ledger{
		backend:      backend,
		cache:        cache,
		coll:         NewCollection(),
		ctx:          ctx,
		cancel:       cancel,
		refreshDelay: DefaultRefreshDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Collection returns the in-memory transaction collection.
func (l *Ledger) Collection() *Collection {
	return l.coll
}

// Transactions returns the current contents of the collection.
func (l *Ledger) Transactions() []model.Transaction {
	return l.coll.Items()
}

// Fetch returns transactions for display. A fresh snapshot with at least one
// transaction is returned at once and an authoritative fetch replaces it in
// the background. Otherwise the backend is queried directly.
func (l *Ledger) Fetch(ctx context.Context) ([]model.Transaction, error) {
	snap, err := l.cache.Load(ctx)
	if err != nil {
		slog.Warn("Failed to read snapshot", "error", err)
	}

	if snap != nil && len(snap.Transactions) > 0 {
		if err := l.coll.Dispatch(ReplaceAllAction(snap.Transactions)); err != nil {
			return nil, err
		}
		l.setCategories(snap.Categories)
		slog.Debug("Serving transactions from snapshot", "count", len(snap.Transactions))

		l.background(func(ctx context.Context) {
			if err := l.ForceRefresh(ctx); err != nil {
				slog.Warn("Background refresh failed", "error", err)
			}
		})
		return l.coll.Items(), nil
	}

	if err := l.ForceRefresh(ctx); err != nil {
		return nil, err
	}
	return l.coll.Items(), nil
}

// ForceRefresh replaces the collection and the snapshot with the backend's
// transactions. Anything not in the response is removed.
func (l *Ledger) ForceRefresh(ctx context.Context) error {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	txns, err := l.backend.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}

	if err := l.coll.Dispatch(ReplaceAllAction(txns)); err != nil {
		return err
	}

	items := l.coll.Items()
	err = l.cache.Update(ctx, func(s *service.Snapshot) error {
		s.Transactions = items
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}

	slog.Debug("Transactions refreshed", "count", len(items))
	return nil
}

// Create stores a new transaction and applies it locally under the id the
// backend assigned. A refresh follows after the configured delay.
func (l *Ledger) Create(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	created, err := l.backend.CreateTransaction(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := l.coll.Dispatch(UpsertAction(*created)); err != nil {
		return nil, err
	}
	l.patch(ctx, func(s *service.Snapshot) {
		s.Transactions = upsertTxn(s.Transactions, *created)
	})
	l.scheduleRefresh()
	return created, nil
}

// Update applies a partial update and stores the backend's result locally.
// A refresh follows after the configured delay.
func (l *Ledger) Update(ctx context.Context, id string, patch model.TransactionPatch) (*model.Transaction, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	updated, err := l.backend.UpdateTransaction(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if updated.ID == "" {
		updated.ID = id
	}
	if err := l.coll.Dispatch(UpsertAction(*updated)); err != nil {
		return nil, err
	}
	l.patch(ctx, func(s *service.Snapshot) {
		s.Transactions = upsertTxn(s.Transactions, *updated)
	})
	l.scheduleRefresh()
	return updated, nil
}

// Delete removes a transaction on the backend and locally.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if err := l.backend.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if err := l.coll.Dispatch(RemoveAction(id)); err != nil {
		return err
	}
	l.patch(ctx, func(s *service.Snapshot) {
		s.Transactions = slices.DeleteFunc(s.Transactions, func(t model.Transaction) bool {
			return t.ID == id
		})
	})
	return nil
}

// ApplyCategory changes the category of baseID, and of similar transactions
// when the scope asks for it, then refreshes from the backend.
func (l *Ledger) ApplyCategory(ctx context.Context, baseID string, apply model.CategoryApply) (*model.CategoryApplyResult, error) {
	if baseID == "" {
		return nil, ErrMissingID
	}
	res, err := l.backend.ApplyCategory(ctx, baseID, apply)
	if err != nil {
		return nil, fmt.Errorf("failed to apply category: %w", err)
	}
	slog.Info("Category applied", "id", baseID, "scope", apply.Scope, "updated", res.Updated)
	if err := l.ForceRefresh(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Categories returns the custom categories, from the snapshot when fresh.
func (l *Ledger) Categories(ctx context.Context) ([]model.CustomCategory, error) {
	snap, err := l.cache.Load(ctx)
	if err != nil {
		slog.Warn("Failed to read snapshot", "error", err)
	}
	if snap != nil && len(snap.Categories) > 0 {
		l.setCategories(snap.Categories)
		return l.currentCategories(), nil
	}
	return l.RefreshCategories(ctx)
}

// RefreshCategories loads the custom categories from the backend.
func (l *Ledger) RefreshCategories(ctx context.Context) ([]model.CustomCategory, error) {
	cats, err := l.backend.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	l.setCategories(cats)
	err = l.cache.Update(ctx, func(s *service.Snapshot) error {
		s.Categories = cats
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return l.currentCategories(), nil
}

// CreateCategory adds a custom category.
func (l *Ledger) CreateCategory(ctx context.Context, name, iconPath string) (*model.CustomCategory, error) {
	cat, err := l.backend.CreateCategory(ctx, name, iconPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	l.mu.Lock()
	l.categories = append(l.categories, *cat)
	l.mu.Unlock()
	l.patch(ctx, func(s *service.Snapshot) {
		s.Categories = append(s.Categories, *cat)
	})
	return cat, nil
}

// DeleteCategory removes a custom category.
func (l *Ledger) DeleteCategory(ctx context.Context, id string) error {
	if err := l.backend.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	byID := func(c model.CustomCategory) bool { return c.ID == id }
	l.mu.Lock()
	l.categories = slices.DeleteFunc(l.categories, byID)
	l.mu.Unlock()
	l.patch(ctx, func(s *service.Snapshot) {
		s.Categories = slices.DeleteFunc(s.Categories, byID)
	})
	return nil
}

// Reset empties the collection and removes the snapshot.
func (l *Ledger) Reset(ctx context.Context) error {
	l.stopTimer()
	if err := l.coll.Dispatch(ClearAction()); err != nil {
		return err
	}
	l.setCategories(nil)
	return l.cache.Clear(ctx)
}

// Wait blocks until background refreshes, including a scheduled one, have run.
func (l *Ledger) Wait() {
	l.bg.Wait()
}

// Close cancels pending and running background work and waits for it to stop.
// No background work starts once Close has begun.
func (l *Ledger) Close() {
	l.mu.Lock()
	l.cancel()
	l.stopTimerLocked()
	l.mu.Unlock()
	l.bg.Wait()
}

func (l *Ledger) background(fn func(ctx context.Context)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	l.bg.Add(1)
	go func() {
		defer l.bg.Done()
		fn(l.ctx)
	}()
}

// scheduleRefresh arranges one delayed refresh. A later call replaces a
// refresh that has not run yet.
func (l *Ledger) scheduleRefresh() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}

	if l.timer != nil && l.timer.Stop() {
		l.bg.Done()
	}

	l.bg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(l.refreshDelay, func() {
		defer l.bg.Done()
		l.mu.Lock()
		if l.timer == t {
			l.timer = nil
		}
		l.mu.Unlock()

		if err := l.ForceRefresh(l.ctx); err != nil {
			slog.Warn("Scheduled refresh failed", "error", err)
		}
	})
	l.timer = t
}

func (l *Ledger) stopTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimerLocked()
}

func (l *Ledger) stopTimerLocked() {
	if l.timer != nil && l.timer.Stop() {
		l.bg.Done()
	}
	l.timer = nil
}

// patch edits a fresh snapshot in place. A missing or expired snapshot is
// left for the next refresh to rebuild.
func (l *Ledger) patch(ctx context.Context, fn func(*service.Snapshot)) {
	applied, err := l.cache.Patch(ctx, func(s *service.Snapshot) error {
		fn(s)
		return nil
	})
	if err != nil {
		slog.Warn("Failed to patch snapshot", "error", err)
		return
	}
	if !applied {
		slog.Debug("Snapshot not fresh, patch skipped")
	}
}

func (l *Ledger) setCategories(cats []model.CustomCategory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.categories = append([]model.CustomCategory(nil), cats...)
}

func (l *Ledger) currentCategories() []model.CustomCategory {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.CustomCategory{}, l.categories...)
}

func upsertTxn(txns []model.Transaction, txn model.Transaction) []model.Transaction {
	for i := range txns {
		if txns[i].ID == txn.ID {
			txns[i] = txn
			return txns
		}
	}
	return append(txns, txn)
}
