package domain

import "time"

// Product is a catalog product as served by the external catalog backend.
// Carts keep a snapshot copy of the product as it existed when it was added,
// never a live reference, so later catalog edits do not mutate cart contents.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Seller      string    `json:"seller"`
	ImageURL    string    `json:"imageUrl"`
	Category    string    `json:"category,omitempty"`
	Stock       int       `json:"stock,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
