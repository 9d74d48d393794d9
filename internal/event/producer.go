package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	pkgkafka "github.com/marcus-menezes/starstore-backend/pkg/kafka"
)

// Kafka topics for storefront domain events.
const (
	TopicCartUpdated  = "starstore.cart.updated"
	TopicCartSynced   = "starstore.cart.synced"
	TopicOrderCreated = "starstore.order.created"
)

// Aggregate types.
const (
	AggregateTypeCart  = "cart"
	AggregateTypeOrder = "order"
)

// Source identifier for events originating from this service.
const SourceStorefront = "starstore-backend"

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string         `json:"session_id"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Total     float64        `json:"total"`
}

// CartSyncedData is the payload for a cart.synced event, emitted after the
// synchronizer swaps carts on an identity transition.
type CartSyncedData struct {
	SessionID    string `json:"session_id"`
	FromIdentity string `json:"from_identity"`
	ToIdentity   string `json:"to_identity"`
	Merged       bool   `json:"merged"`
	ItemCount    int    `json:"item_count"`
}

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	OrderID     string  `json:"order_id"`
	UserID      string  `json:"user_id"`
	ItemCount   int     `json:"item_count"`
	TotalAmount float64 `json:"total_amount"`
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, items []domain.CartItem) error {
	data := CartUpdatedData{
		SessionID: sessionID,
		Items:     toItemData(items),
		ItemCount: domain.ItemCount(items),
		Total:     domain.Total(items),
	}

	ev, err := pkgkafka.NewEvent(TopicCartUpdated, sessionID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, ev); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	return nil
}

// PublishCartSynced publishes a cart.synced event.
func (p *Producer) PublishCartSynced(ctx context.Context, data CartSyncedData) error {
	ev, err := pkgkafka.NewEvent(TopicCartSynced, data.SessionID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create cart.synced event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartSynced, ev); err != nil {
		return fmt.Errorf("publish cart.synced event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.synced event",
		slog.String("session_id", data.SessionID),
		slog.Bool("merged", data.Merged),
	)

	return nil
}

// PublishOrderCreated publishes an order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	data := OrderCreatedData{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ItemCount:   order.ItemCount,
		TotalAmount: order.TotalAmount,
	}

	ev, err := pkgkafka.NewEvent(TopicOrderCreated, order.ID, AggregateTypeOrder, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create order.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCreated, ev); err != nil {
		return fmt.Errorf("publish order.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
	)

	return nil
}

func toItemData(items []domain.CartItem) []CartItemData {
	out := make([]CartItemData, len(items))
	for i, item := range items {
		out[i] = CartItemData{
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Price:     item.Product.Price,
			Quantity:  item.Quantity,
		}
	}
	return out
}
