// Package store holds the live in-memory cart of each device session. The
// store is the single source of truth for what the client currently sees;
// persistence only happens when the session's identity changes (see the sync
// service) or at checkout.
package store

import (
	"sync"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
)

// Listener is notified with the full new snapshot after every mutation.
type Listener func(items []domain.CartItem)

// Store holds one live cart snapshot. All operations are total: mutations on
// absent items are no-ops, never errors. A mutex guards the snapshot because,
// unlike the mobile client this design originated from, the server handles
// requests concurrently.
type Store struct {
	mu        sync.Mutex
	items     []domain.CartItem
	listeners []Listener
}

// New creates an empty cart store.
func New() *Store {
	return &Store{}
}

// AddItem merges the product into the cart: an existing item's quantity grows
// by one, otherwise a new item with quantity 1 is appended.
func (s *Store) AddItem(p domain.Product) {
	s.mu.Lock()
	if i := domain.FindItemIndex(s.items, p.ID); i >= 0 {
		s.items[i].Quantity++
	} else {
		s.items = append(s.items, domain.CartItem{Product: p, Quantity: 1})
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// RemoveItem deletes the item with the given product id. Absent ids are a no-op.
func (s *Store) RemoveItem(productID string) {
	s.mu.Lock()
	i := domain.FindItemIndex(s.items, productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// UpdateQuantity sets the quantity for the given product id. A quantity <= 0
// removes the item; an absent id is a no-op. Stock limits are not enforced
// here; that is a client concern.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(productID)
		return
	}

	s.mu.Lock()
	i := domain.FindItemIndex(s.items, productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.items[i].Quantity = quantity
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// SetItems atomically replaces the whole snapshot. This is the hook the
// identity synchronizer uses to swap carts; it bypasses per-item merge logic.
func (s *Store) SetItems(items []domain.CartItem) {
	cp := make([]domain.CartItem, len(items))
	copy(cp, items)

	s.mu.Lock()
	s.items = cp
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Items returns a copy of the current snapshot.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Total returns the sum of price * quantity over the live snapshot.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Total(s.items)
}

// ItemCount returns the total unit count of the live snapshot.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ItemCount(s.items)
}

// Subscribe registers a listener invoked with the new snapshot after every
// mutation. Listeners run synchronously on the mutating goroutine, outside
// the store lock.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) snapshotLocked() []domain.CartItem {
	cp := make([]domain.CartItem, len(s.items))
	copy(cp, s.items)
	return cp
}

func (s *Store) notify(snapshot []domain.CartItem) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}
