package wishlist

import "time"

// MaxItems bounds one wishlist.
const MaxItems = 200

// Item is a saved product. Name, price and image are captured when the item
// is added; Available is filled in on read from the live catalog.
type Item struct {
	ProductKey string    `json:"product_key"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Category   string    `json:"category,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	AddedAt    time.Time `json:"added_at"`
	Available  bool      `json:"available"`
}

// View is a wishlist as returned to callers, in insertion order.
type View struct {
	CartID string `json:"cart_id"`
	Items  []Item `json:"items"`
	Count  int    `json:"count"`
}

// ToggleResult reports which way a toggle went.
type ToggleResult struct {
	View
	ProductKey string `json:"product_key"`
	Added      bool   `json:"added"`
}

func indexOf(items []Item, productKey string) int {
	for i, item := range items {
		if item.ProductKey == productKey {
			return i
		}
	}
	return -1
}
