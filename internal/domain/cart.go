package domain

// CartItem pairs a product snapshot with a quantity. Within a cart there is
// at most one CartItem per product id, and a stored quantity is always >= 1.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Total returns the sum of price * quantity over all items.
func Total(items []CartItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Product.Price * float64(item.Quantity)
	}
	return total
}

// ItemCount returns the total unit count across all items, not the number of
// distinct products.
func ItemCount(items []CartItem) int {
	var count int
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// FindItemIndex returns the index of the item with the given product id, or -1.
func FindItemIndex(items []CartItem, productID string) int {
	for i := range items {
		if items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// MergeCarts folds an absorbed cart (typically a guest session's cart) into a
// base cart (the signed-in user's stored cart). Items present in both carts
// have their quantities summed; items only in the absorbed cart are inserted
// unchanged. The base cart's product snapshots win when both carts carry the
// same product id. Neither input slice is modified.
func MergeCarts(base, absorbed []CartItem) []CartItem {
	merged := make([]CartItem, len(base))
	copy(merged, base)

	for _, item := range absorbed {
		if i := FindItemIndex(merged, item.Product.ID); i >= 0 {
			merged[i].Quantity += item.Quantity
			continue
		}
		merged = append(merged, item)
	}

	return merged
}
