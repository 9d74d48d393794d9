package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/identity"
	"github.com/marcus-menezes/starstore-backend/internal/repository"
	"github.com/marcus-menezes/starstore-backend/internal/store"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
	"github.com/marcus-menezes/starstore-backend/pkg/pagination"
)

// OrderEvents is the slice of the event producer the order service needs.
type OrderEvents interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
}

// OrderService turns a session's live cart into a persisted order at checkout
// and serves order history.
type OrderService struct {
	stores    *store.Manager
	orders    repository.OrderRepository
	snapshots repository.SnapshotStore
	events    OrderEvents
	logger    *slog.Logger
}

// NewOrderService creates an order service. events may be nil.
func NewOrderService(stores *store.Manager, orders repository.OrderRepository, snapshots repository.SnapshotStore, events OrderEvents, logger *slog.Logger) *OrderService {
	return &OrderService{
		stores:    stores,
		orders:    orders,
		snapshots: snapshots,
		events:    events,
		logger:    logger,
	}
}

// Checkout creates an order from the session's current cart. Only signed-in
// users can check out; the guest identity gets ErrUnauthorized. On success
// the live cart is emptied and the user's persisted snapshot deleted, so a
// later identity swap does not resurrect purchased items.
func (s *OrderService) Checkout(ctx context.Context, sessionID string, id identity.Identity) (*domain.Order, error) {
	if id.IsGuest() {
		return nil, apperrors.Unauthorized("sign in to check out")
	}

	cart := s.stores.Get(sessionID)
	if cart == nil {
		return nil, apperrors.InvalidInput("cart is empty")
	}
	items := cart.Items()
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("cart is empty")
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:          uuid.NewString(),
		UserID:      id.UserID(),
		Status:      domain.OrderStatusCreated,
		Items:       make([]domain.OrderItem, 0, len(items)),
		TotalAmount: domain.Total(items),
		ItemCount:   domain.ItemCount(items),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:       uuid.NewString(),
			OrderID:  order.ID,
			Product:  item.Product,
			Quantity: item.Quantity,
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apperrors.Wrap(err, "failed to create order")
	}

	cart.Clear()
	if err := s.snapshots.Delete(ctx, snapshotKey(sessionID, id)); err != nil {
		snapshotFailuresTotal.WithLabelValues("delete").Inc()
		s.logger.ErrorContext(ctx, "failed to delete cart snapshot after checkout",
			slog.String("session_id", sessionID),
			slog.String("user_id", id.UserID()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int("item_count", order.ItemCount),
		slog.Float64("total_amount", order.TotalAmount),
	)

	if s.events != nil {
		if err := s.events.PublishOrderCreated(ctx, order); err != nil {
			s.logger.WarnContext(ctx, "failed to publish order.created event",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return order, nil
}

// GetOrder returns one of the user's orders. Asking for another user's order
// yields ErrForbidden rather than revealing whether it exists.
func (s *OrderService) GetOrder(ctx context.Context, orderID string, id identity.Identity) (*domain.Order, error) {
	if id.IsGuest() {
		return nil, apperrors.Unauthorized("sign in to view orders")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != id.UserID() {
		return nil, apperrors.Forbidden("order belongs to another user")
	}
	return order, nil
}

// CancelOrder cancels one of the user's orders. Only orders still in the
// created state can be canceled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, id identity.Identity) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID, id)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusCreated {
		return nil, apperrors.InvalidInput("only orders awaiting fulfillment can be canceled")
	}

	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCanceled); err != nil {
		return nil, apperrors.Wrap(err, "failed to cancel order")
	}

	order.Status = domain.OrderStatusCanceled
	s.logger.InfoContext(ctx, "order canceled",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
	)
	return order, nil
}

// ListOrders returns a page of the user's order history, newest first.
func (s *OrderService) ListOrders(ctx context.Context, id identity.Identity, params pagination.Params) (pagination.Result[domain.Order], error) {
	if id.IsGuest() {
		return pagination.Result[domain.Order]{}, apperrors.Unauthorized("sign in to view orders")
	}

	orders, total, err := s.orders.ListByUser(ctx, id.UserID(), params)
	if err != nil {
		return pagination.Result[domain.Order]{}, err
	}
	return pagination.NewResult(orders, total, params), nil
}
