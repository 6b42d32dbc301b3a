package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Veraticus/bankflow/internal/model"
)

// ErrMissingID is returned when a transaction without a backend id reaches the collection.
var ErrMissingID = errors.New("transaction has no id")

// ActionKind selects what a dispatched Action does.
type ActionKind int

// Collection actions.
const (
	// ReplaceAll makes the collection exactly the given items.
	ReplaceAll ActionKind = iota + 1
	// Upsert inserts or replaces one item.
	Upsert
	// Remove deletes one item by id.
	Remove
	// Clear empties the collection.
	Clear
)

func (k ActionKind) String() string {
	switch k {
	case ReplaceAll:
		return "replace-all"
	case Upsert:
		return "upsert"
	case Remove:
		return "remove"
	case Clear:
		return "clear"
	default:
		return fmt.Sprintf("action(%d)", int(k))
	}
}

// Action is a single mutation of a Collection.
type Action struct {
	ID    string
	Items []model.Transaction
	Item  model.Transaction
	Kind  ActionKind
}

// ReplaceAllAction replaces the whole collection.
func ReplaceAllAction(items []model.Transaction) Action {
	return Action{Kind: ReplaceAll, Items: items}
}

// UpsertAction inserts or replaces one transaction.
func UpsertAction(txn model.Transaction) Action {
	return Action{Kind: Upsert, Item: txn}
}

// RemoveAction deletes a transaction.
func RemoveAction(id string) Action {
	return Action{Kind: Remove, ID: id}
}

// ClearAction empties the collection.
func ClearAction() Action {
	return Action{Kind: Clear}
}

// Collection is the in-memory transaction set, keyed by backend id and kept
// in insertion order. All mutations go through Dispatch.
type Collection struct {
	byID        map[string]model.Transaction
	subscribers []func([]model.Transaction)
	order       []string
	version     uint64
	mu          sync.RWMutex
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{byID: map[string]model.Transaction{}}
}

// Dispatch applies a and then notifies subscribers with the new contents.
func (c *Collection) Dispatch(a Action) error {
	c.mu.Lock()
	if err := c.reduce(a); err != nil {
		c.mu.Unlock()
		return err
	}
	c.version++
	items := c.itemsLocked()
	subscribers := slices.Clone(c.subscribers)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(items)
	}
	return nil
}

func (c *Collection) reduce(a Action) error {
	switch a.Kind {
	case ReplaceAll:
		byID := make(map[string]model.Transaction, len(a.Items))
		order := make([]string, 0, len(a.Items))
		skipped := 0
		for _, txn := range a.Items {
			if txn.ID == "" {
				skipped++
				continue
			}
			if _, seen := byID[txn.ID]; !seen {
				order = append(order, txn.ID)
			}
			byID[txn.ID] = txn
		}
		if skipped > 0 {
			slog.Warn("Dropped transactions without id", "count", skipped)
		}
		c.byID = byID
		c.order = order
	case Upsert:
		if a.Item.ID == "" {
			return ErrMissingID
		}
		if _, ok := c.byID[a.Item.ID]; !ok {
			c.order = append(c.order, a.Item.ID)
		}
		c.byID[a.Item.ID] = a.Item
	case Remove:
		if a.ID == "" {
			return ErrMissingID
		}
		if _, ok := c.byID[a.ID]; !ok {
			return nil
		}
		delete(c.byID, a.ID)
		for i, id := range c.order {
			if id == a.ID {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	case Clear:
		c.byID = map[string]model.Transaction{}
		c.order = nil
	default:
		return fmt.Errorf("unknown action %s", a.Kind)
	}
	return nil
}

func (c *Collection) itemsLocked() []model.Transaction {
	items := make([]model.Transaction, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, c.byID[id])
	}
	return items
}

// Items returns a copy of the contents in order.
func (c *Collection) Items() []model.Transaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.itemsLocked()
}

// Get returns one transaction by id.
func (c *Collection) Get(id string) (model.Transaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	txn, ok := c.byID[id]
	return txn, ok
}

// Len returns the number of transactions.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Version counts successful dispatches.
func (c *Collection) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Subscribe registers fn to receive the contents after every dispatch.
func (c *Collection) Subscribe(fn func([]model.Transaction)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}
