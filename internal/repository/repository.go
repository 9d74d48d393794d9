package repository

import (
	"context"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/pkg/pagination"
)

// SnapshotStore persists per-identity cart snapshots as whole units under
// string keys. Implementations report errors; the degrade-to-absence policy
// (a failed or corrupt read counts as an empty cart) belongs to the caller.
type SnapshotStore interface {
	// Get retrieves the snapshot stored under key. Returns an error wrapping
	// errors.ErrNotFound when no snapshot exists.
	Get(ctx context.Context, key string) ([]domain.CartItem, error)

	// Save stores the snapshot under key, overwriting any prior value.
	Save(ctx context.Context, key string, items []domain.CartItem) error

	// Delete removes the snapshot under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// OrderRepository defines persistence for placed orders.
type OrderRepository interface {
	// Create inserts a new order and its items atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ListByUser returns a page of the user's orders, newest first, along
	// with the total count.
	ListByUser(ctx context.Context, userID string, params pagination.Params) ([]domain.Order, int, error)

	// UpdateStatus changes an order's status. Returns an error wrapping
	// errors.ErrNotFound when the order does not exist.
	UpdateStatus(ctx context.Context, id string, status string) error
}
