package domain

import "time"

// Order statuses.
const (
	OrderStatusCreated   = "created"
	OrderStatusDelivered = "delivered"
	OrderStatusCanceled  = "canceled"
)

// Order is a placed order, created at checkout from the live cart snapshot.
type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Status      string      `json:"status"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"total_amount"`
	ItemCount   int         `json:"item_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order; like a CartItem it carries the product
// snapshot captured when the product was added to the cart.
type OrderItem struct {
	ID       string  `json:"id"`
	OrderID  string  `json:"order_id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}
