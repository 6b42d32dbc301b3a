package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/testutil"
)

func ids(txns []model.Transaction) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}

func TestCollection_ReplaceAllIsIdempotent(t *testing.T) {
	c := NewCollection()
	server := testutil.NewTransactions("t", 5)

	for range 4 {
		require.NoError(t, c.Dispatch(ReplaceAllAction(server)))
	}

	assert.Equal(t, server, c.Items())
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, uint64(4), c.Version())
}

func TestCollection_SubscribersSeeEachDispatch(t *testing.T) {
	c := NewCollection()
	var first, late []int

	c.Subscribe(func(items []model.Transaction) {
		first = append(first, len(items))
		if len(first) == 1 {
			// Subscribing from a callback takes effect on the next dispatch.
			c.Subscribe(func(items []model.Transaction) {
				late = append(late, len(items))
			})
		}
	})

	require.NoError(t, c.Dispatch(UpsertAction(testutil.NewTransaction("a1"))))
	require.NoError(t, c.Dispatch(UpsertAction(testutil.NewTransaction("b2"))))

	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, []int{2}, late)
}

func TestCollection_ReplaceAllRemovesMissing(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Dispatch(ReplaceAllAction(testutil.NewTransactions("t", 3))))

	require.NoError(t, c.Dispatch(ReplaceAllAction([]model.Transaction{
		testutil.NewTransaction("t2"),
		testutil.NewTransaction("n1"),
	})))

	assert.Equal(t, []string{"t2", "n1"}, ids(c.Items()))
	_, ok := c.Get("t1")
	assert.False(t, ok)
}

func TestCollection_NoDuplicateKeys(t *testing.T) {
	tests := []struct {
		name    string
		actions []Action
		want    []string
	}{
		{
			name: "duplicates in one response",
			actions: []Action{ReplaceAllAction([]model.Transaction{
				testutil.NewTransaction("a"),
				testutil.NewTransaction("b"),
				testutil.NewTransaction("a", testutil.WithTitle("later")),
			})},
			want: []string{"a", "b"},
		},
		{
			name: "upsert of a known id",
			actions: []Action{
				ReplaceAllAction(testutil.NewTransactions("t", 2)),
				UpsertAction(testutil.NewTransaction("t1", testutil.WithTitle("edited"))),
				UpsertAction(testutil.NewTransaction("t1", testutil.WithTitle("edited again"))),
			},
			want: []string{"t1", "t2"},
		},
		{
			name: "entries without id are dropped",
			actions: []Action{ReplaceAllAction([]model.Transaction{
				testutil.NewTransaction(""),
				testutil.NewTransaction("a"),
				testutil.NewTransaction(""),
			})},
			want: []string{"a"},
		},
		{
			name: "upsert after remove appends",
			actions: []Action{
				ReplaceAllAction(testutil.NewTransactions("t", 3)),
				RemoveAction("t1"),
				UpsertAction(testutil.NewTransaction("t1")),
			},
			want: []string{"t2", "t3", "t1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollection()
			for _, a := range tt.actions {
				require.NoError(t, c.Dispatch(a))
			}
			got := ids(c.Items())
			assert.Equal(t, tt.want, got)

			seen := map[string]bool{}
			for _, id := range got {
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestCollection_LastWriteWinsForDuplicateIDs(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Dispatch(ReplaceAllAction([]model.Transaction{
		testutil.NewTransaction("a", testutil.WithTitle("first")),
		testutil.NewTransaction("a", testutil.WithTitle("second")),
	})))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got.Title)
}

func TestCollection_LegacyIDCollisionKeepsBoth(t *testing.T) {
	// 0x0f4241 is 1_000_001, which folds onto the same legacy id as 0x01.
	a := testutil.NewTransaction("01")
	b := testutil.NewTransaction("0f4241")
	require.Equal(t, a.LegacyID(), b.LegacyID())

	c := NewCollection()
	require.NoError(t, c.Dispatch(ReplaceAllAction([]model.Transaction{a, b})))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"01", "0f4241"}, ids(c.Items()))
}

func TestCollection_RejectsMissingID(t *testing.T) {
	c := NewCollection()

	assert.ErrorIs(t, c.Dispatch(UpsertAction(model.Transaction{Title: "no id"})), ErrMissingID)
	assert.ErrorIs(t, c.Dispatch(RemoveAction("")), ErrMissingID)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(0), c.Version())
}

func TestCollection_RemoveUnknownIsNoop(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Dispatch(ReplaceAllAction(testutil.NewTransactions("t", 2))))

	require.NoError(t, c.Dispatch(RemoveAction("missing")))
	assert.Equal(t, []string{"t1", "t2"}, ids(c.Items()))
}

func TestCollection_Clear(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Dispatch(ReplaceAllAction(testutil.NewTransactions("t", 3))))
	require.NoError(t, c.Dispatch(ClearAction()))

	assert.Empty(t, c.Items())
	assert.Equal(t, 0, c.Len())
}

func TestCollection_SubscribersSeeEveryDispatch(t *testing.T) {
	c := NewCollection()
	var sizes []int
	c.Subscribe(func(items []model.Transaction) {
		sizes = append(sizes, len(items))
	})

	require.NoError(t, c.Dispatch(ReplaceAllAction(testutil.NewTransactions("t", 3))))
	require.NoError(t, c.Dispatch(UpsertAction(testutil.NewTransaction("n"))))
	require.NoError(t, c.Dispatch(RemoveAction("t1")))
	require.Error(t, c.Dispatch(UpsertAction(model.Transaction{})))

	assert.Equal(t, []int{3, 4, 3}, sizes)
}

func TestCollection_ItemsIsACopy(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Dispatch(ReplaceAllAction(testutil.NewTransactions("t", 2))))

	items := c.Items()
	items[0].Title = "mutated"

	got, _ := c.Get("t1")
	assert.Equal(t, "Transaction t1", got.Title)
}

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "replace-all", ReplaceAll.String())
	assert.Equal(t, "upsert", Upsert.String())
	assert.Equal(t, "remove", Remove.String())
	assert.Equal(t, "clear", Clear.String())
	assert.Equal(t, "action(9)", ActionKind(9).String())
}
