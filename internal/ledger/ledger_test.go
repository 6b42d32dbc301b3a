package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/service"
	"github.com/Veraticus/bankflow/internal/snapshot"
	"github.com/Veraticus/bankflow/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// server is a mutable transaction list behind the mock backend.
type server struct {
	txns []model.Transaction
	mu   sync.Mutex
}

func (s *server) set(txns []model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append([]model.Transaction(nil), txns...)
}

func (s *server) list(context.Context) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.txns...), nil
}

type ledgerFixture struct {
	client *api.MockClient
	clock  *testutil.FakeClock
	db     *testutil.TestDB
	server *server
	ledger *Ledger
}

func newLedgerFixture(t *testing.T, opts testutil.TestDBOptions, ledgerOpts ...Option) *ledgerFixture {
	t.Helper()
	clock := testutil.NewFakeClock(epoch)
	f := &ledgerFixture{
		client: api.NewMockClient(),
		clock:  clock,
		db:     testutil.SetupTestDBWithOptions(t, opts),
		server: &server{},
	}
	f.client.ListTransactionsFn = f.server.list
	cache := snapshot.New(f.db.Storage, clock, 0)
	f.ledger = New(f.client, cache, append([]Option{WithRefreshDelay(10 * time.Millisecond)}, ledgerOpts...)...)
	t.Cleanup(f.ledger.Close)
	return f
}

func TestForceRefresh_IsIdempotent(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{})
	f.server.set(testutil.NewTransactions("t", 4))
	ctx := context.Background()

	require.NoError(t, f.ledger.ForceRefresh(ctx))
	first := f.ledger.Transactions()

	for range 3 {
		require.NoError(t, f.ledger.ForceRefresh(ctx))
	}

	assert.Equal(t, first, f.ledger.Transactions())
	assert.Len(t, f.ledger.Transactions(), 4)

	snap := f.db.MustSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, ids(first), ids(snap.Transactions))
	assert.Equal(t, 4, f.client.Calls("ListTransactions"))
}

func TestForceRefresh_ReplacesRatherThanMerges(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{
		Transactions: testutil.NewTransactions("old", 3),
		SnapshotAt:   epoch,
	})
	f.server.set([]model.Transaction{testutil.NewTransaction("old2"), testutil.NewTransaction("new1")})

	require.NoError(t, f.ledger.ForceRefresh(context.Background()))

	assert.Equal(t, []string{"old2", "new1"}, ids(f.ledger.Transactions()))
	assert.Equal(t, []string{"old2", "new1"}, ids(f.db.MustSnapshot().Transactions))
}

func TestForceRefresh_Error(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{})
	f.client.ListTransactionsFn = func(context.Context) ([]model.Transaction, error) {
		return nil, &api.Error{Resource: "transactions", StatusCode: 500, Message: "boom"}
	}

	err := f.ledger.ForceRefresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Nil(t, f.db.MustSnapshot())
}

func TestFetch_FreshnessBoundary(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		wantHit bool
	}{
		{name: "just inside the window", age: snapshot.DefaultTTL - time.Millisecond, wantHit: true},
		{name: "exactly at the window", age: snapshot.DefaultTTL, wantHit: true},
		{name: "just outside the window", age: snapshot.DefaultTTL + time.Millisecond, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := testutil.NewTransactions("cached", 2)
			fresh := testutil.NewTransactions("server", 3)

			f := newLedgerFixture(t, testutil.TestDBOptions{
				Transactions: cached,
				SnapshotAt:   epoch.Add(-tt.age),
			})
			f.server.set(fresh)

			got, err := f.ledger.Fetch(context.Background())
			require.NoError(t, err)

			if tt.wantHit {
				assert.Equal(t, ids(cached), ids(got))
			} else {
				assert.Equal(t, ids(fresh), ids(got))
				assert.Equal(t, 1, f.client.Calls("ListTransactions"))
			}

			// Either way the authoritative data ends up in place.
			f.ledger.Wait()
			assert.Equal(t, ids(fresh), ids(f.ledger.Transactions()))
			assert.Equal(t, ids(fresh), ids(f.db.MustSnapshot().Transactions))
			assert.Equal(t, 1, f.client.Calls("ListTransactions"))
		})
	}
}

func TestFetch_EmptySnapshotGoesToNetwork(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{
		Transactions: []model.Transaction{},
		SnapshotAt:   epoch,
	})
	f.server.set(testutil.NewTransactions("s", 1))

	got, err := f.ledger.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(got))
}

func TestFetch_HitDoesNotWaitForNetwork(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{
		Transactions: testutil.NewTransactions("c", 1),
		SnapshotAt:   epoch,
	})
	release := make(chan struct{})
	f.client.ListTransactionsFn = func(ctx context.Context) ([]model.Transaction, error) {
		select {
		case <-release:
			return testutil.NewTransactions("s", 2), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	got, err := f.ledger.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids(got))

	close(release)
	f.ledger.Wait()
	assert.Equal(t, []string{"s1", "s2"}, ids(f.ledger.Transactions()))
}

func TestFetch_BackgroundFailureKeepsCache(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{
		Transactions: testutil.NewTransactions("c", 2),
		SnapshotAt:   epoch,
	})
	f.client.ListTransactionsFn = func(context.Context) ([]model.Transaction, error) {
		return nil, errors.New("offline")
	}

	_, err := f.ledger.Fetch(context.Background())
	require.NoError(t, err)
	f.ledger.Wait()

	assert.Equal(t, []string{"c1", "c2"}, ids(f.ledger.Transactions()))
}

func TestCreate_AppliesWithServerIDAndSchedulesRefresh(t *testing.T) {
	seed := testutil.NewTransactions("t", 2)
	f := newLedgerFixture(t, testutil.TestDBOptions{Transactions: seed, SnapshotAt: epoch})
	require.NoError(t, f.ledger.Collection().Dispatch(ReplaceAllAction(seed)))

	created := testutil.NewTransaction("srv-1", testutil.Manual(), testutil.WithTitle("Coffee"))
	f.client.CreateTransactionFn = func(_ context.Context, txn model.Transaction) (*model.Transaction, error) {
		assert.Empty(t, txn.ID)
		return &created, nil
	}
	f.server.set(append(append([]model.Transaction(nil), seed...), created))

	got, err := f.ledger.Create(context.Background(), testutil.NewTransaction("", testutil.Manual(), testutil.WithTitle("Coffee")))
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ID)

	assert.Equal(t, []string{"t1", "t2", "srv-1"}, ids(f.ledger.Transactions()))
	assert.Equal(t, []string{"t1", "t2", "srv-1"}, ids(f.db.MustSnapshot().Transactions))

	f.ledger.Wait()
	assert.Equal(t, 1, f.client.Calls("ListTransactions"))
	assert.Equal(t, []string{"t1", "t2", "srv-1"}, ids(f.ledger.Transactions()))
}

func TestCreate_WithoutServerIDFails(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{})
	f.client.CreateTransactionFn = func(_ context.Context, txn model.Transaction) (*model.Transaction, error) {
		return &txn, nil
	}

	_, err := f.ledger.Create(context.Background(), testutil.NewTransaction(""))
	require.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, 0, f.ledger.Collection().Len())
}

func TestCreate_ExpiredSnapshotIsNotPatched(t *testing.T) {
	stamp := epoch.Add(-snapshot.DefaultTTL - time.Minute)
	f := newLedgerFixture(t, testutil.TestDBOptions{
		Transactions: testutil.NewTransactions("old", 1),
		SnapshotAt:   stamp,
	}, WithRefreshDelay(time.Hour))
	f.client.CreateTransactionFn = func(context.Context, model.Transaction) (*model.Transaction, error) {
		txn := testutil.NewTransaction("srv-1")
		return &txn, nil
	}

	_, err := f.ledger.Create(context.Background(), testutil.NewTransaction(""))
	require.NoError(t, err)

	snap := f.db.MustSnapshot()
	assert.Equal(t, []string{"old1"}, ids(snap.Transactions))
	assert.True(t, snap.LastUpdated.Equal(stamp))
}

func TestUpdate_StoresServerResultAndDebouncesRefresh(t *testing.T) {
	seed := testutil.NewTransactions("t", 2)
	f := newLedgerFixture(t, testutil.TestDBOptions{Transactions: seed, SnapshotAt: epoch}, WithRefreshDelay(50*time.Millisecond))
	require.NoError(t, f.ledger.Collection().Dispatch(ReplaceAllAction(seed)))
	f.server.set(seed)

	f.client.UpdateTransactionFn = func(_ context.Context, id string, patch model.TransactionPatch) (*model.Transaction, error) {
		txn := testutil.NewTransaction(id)
		patch.Apply(&txn)
		txn.CategorySource = model.CategorySourceManual
		return &txn, nil
	}

	title := "Groceries"
	_, err := f.ledger.Update(context.Background(), "t1", model.TransactionPatch{Title: &title})
	require.NoError(t, err)
	category := "Food"
	_, err = f.ledger.Update(context.Background(), "t1", model.TransactionPatch{Category: &category})
	require.NoError(t, err)

	got, ok := f.ledger.Collection().Get("t1")
	require.True(t, ok)
	assert.Equal(t, "Food", got.CategoryName())
	assert.Equal(t, model.CategorySourceManual, got.CategorySource)

	stored := f.db.MustSnapshot().Transactions
	require.Len(t, stored, 2)
	assert.Equal(t, "Food", stored[0].CategoryName())

	f.ledger.Wait()
	assert.Equal(t, 1, f.client.Calls("ListTransactions"))
}

func TestUpdate_RequiresID(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{})

	_, err := f.ledger.Update(context.Background(), "", model.TransactionPatch{})
	require.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, 0, f.client.TotalCalls())
}

func TestDelete_RemovesWithoutScheduledRefresh(t *testing.T) {
	seed := testutil.NewTransactions("t", 3)
	f := newLedgerFixture(t, testutil.TestDBOptions{Transactions: seed, SnapshotAt: epoch})
	require.NoError(t, f.ledger.Collection().Dispatch(ReplaceAllAction(seed)))

	require.NoError(t, f.ledger.Delete(context.Background(), "t2"))

	assert.Equal(t, []string{"t1", "t3"}, ids(f.ledger.Transactions()))
	assert.Equal(t, []string{"t1", "t3"}, ids(f.db.MustSnapshot().Transactions))

	f.ledger.Wait()
	assert.Equal(t, 0, f.client.Calls("ListTransactions"))
}

func TestDelete_BackendErrorLeavesState(t *testing.T) {
	seed := testutil.NewTransactions("t", 2)
	f := newLedgerFixture(t, testutil.TestDBOptions{Transactions: seed, SnapshotAt: epoch})
	require.NoError(t, f.ledger.Collection().Dispatch(ReplaceAllAction(seed)))
	f.client.DeleteTransactionFn = func(context.Context, string) error {
		return &api.Error{Resource: "transactions", StatusCode: 404, Message: "Transaction not found"}
	}

	err := f.ledger.Delete(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Transaction not found")
	assert.Equal(t, 2, f.ledger.Collection().Len())
}

func TestApplyCategory_RefreshesImmediately(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{})
	f.server.set([]model.Transaction{
		testutil.NewTransaction("a", testutil.WithCategory("Food")),
		testutil.NewTransaction("b", testutil.WithCategory("Food")),
	})
	f.client.ApplyCategoryFn = func(_ context.Context, baseID string, apply model.CategoryApply) (*model.CategoryApplyResult, error) {
		assert.Equal(t, "a", baseID)
		assert.Equal(t, model.ScopeSimilar, apply.Scope)
		return &model.CategoryApplyResult{Updated: 2}, nil
	}

	res, err := f.ledger.ApplyCategory(context.Background(), "a", model.CategoryApply{Category: "Food", Scope: model.ScopeSimilar})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, f.client.Calls("ListTransactions"))

	for _, txn := range f.ledger.Transactions() {
		assert.Equal(t, "Food", txn.CategoryName())
	}
}

func TestClose_CancelsScheduledRefresh(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{}, WithRefreshDelay(time.Hour))
	f.client.CreateTransactionFn = func(context.Context, model.Transaction) (*model.Transaction, error) {
		txn := testutil.NewTransaction("srv-1")
		return &txn, nil
	}

	_, err := f.ledger.Create(context.Background(), testutil.NewTransaction(""))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.ledger.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, 0, f.client.Calls("ListTransactions"))
}

func TestClose_RacingMutationsScheduleNothing(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{}, WithRefreshDelay(time.Millisecond))
	f.client.CreateTransactionFn = func(_ context.Context, txn model.Transaction) (*model.Transaction, error) {
		txn.ID = "srv-" + txn.Title
		return &txn, nil
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.ledger.Create(context.Background(), testutil.NewTransaction("", testutil.WithTitle(string(rune('a'+i)))))
		}()
	}
	f.ledger.Close()
	wg.Wait()

	f.ledger.mu.Lock()
	assert.Nil(t, f.ledger.timer, "no refresh armed after Close")
	f.ledger.mu.Unlock()

	_, err := f.ledger.Fetch(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.ledger.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background work started after Close")
	}
}

func TestCategories(t *testing.T) {
	cached := []model.CustomCategory{{ID: "c1", Name: "Pets", IconPath: "paw"}}
	remote := []model.CustomCategory{{ID: "c2", Name: "Gifts", IconPath: "gift"}}

	t.Run("fresh snapshot", func(t *testing.T) {
		f := newLedgerFixture(t, testutil.TestDBOptions{
			CustomSetup: func(ctx context.Context, s service.Storage) error {
				return s.UpdateSnapshot(ctx, func(snap *service.Snapshot) error {
					snap.Categories = cached
					snap.LastUpdated = epoch
					return nil
				})
			},
		})
		f.client.ListCategoriesFn = func(context.Context) ([]model.CustomCategory, error) { return remote, nil }

		got, err := f.ledger.Categories(context.Background())
		require.NoError(t, err)
		assert.Equal(t, cached, got)
		assert.Equal(t, 0, f.client.Calls("ListCategories"))
	})

	t.Run("no snapshot", func(t *testing.T) {
		f := newLedgerFixture(t, testutil.TestDBOptions{})
		f.client.ListCategoriesFn = func(context.Context) ([]model.CustomCategory, error) { return remote, nil }

		got, err := f.ledger.Categories(context.Background())
		require.NoError(t, err)
		assert.Equal(t, remote, got)
		assert.Equal(t, remote, f.db.MustSnapshot().Categories)
	})
}

func TestCategoryMutations(t *testing.T) {
	f := newLedgerFixture(t, testutil.TestDBOptions{})
	ctx := context.Background()
	f.client.ListCategoriesFn = func(context.Context) ([]model.CustomCategory, error) {
		return []model.CustomCategory{{ID: "c1", Name: "Pets"}}, nil
	}
	f.client.CreateCategoryFn = func(_ context.Context, name, icon string) (*model.CustomCategory, error) {
		return &model.CustomCategory{ID: "c2", Name: name, IconPath: icon}, nil
	}

	_, err := f.ledger.RefreshCategories(ctx)
	require.NoError(t, err)

	_, err = f.ledger.CreateCategory(ctx, "Gifts", "gift")
	require.NoError(t, err)
	assert.Len(t, f.db.MustSnapshot().Categories, 2)

	require.NoError(t, f.ledger.DeleteCategory(ctx, "c1"))
	got, err := f.ledger.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Gifts", got[0].Name)
}

func TestReset(t *testing.T) {
	seed := testutil.NewTransactions("t", 2)
	f := newLedgerFixture(t, testutil.TestDBOptions{Transactions: seed, SnapshotAt: epoch})
	require.NoError(t, f.ledger.Collection().Dispatch(ReplaceAllAction(seed)))

	require.NoError(t, f.ledger.Reset(context.Background()))

	assert.Empty(t, f.ledger.Transactions())
	assert.Nil(t, f.db.MustSnapshot())
}
