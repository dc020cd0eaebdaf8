package cart

import (
	"fmt"
	"math"
)

// Item is one line of a customer's cart. Subscription variants carry a
// "-sub" suffix on the catalog SKU and IsSubscription set.
type Item struct {
	ID             string  `json:"id" validate:"required"`
	Name           string  `json:"name" validate:"required"`
	UnitPrice      float64 `json:"price" validate:"required,gt=0"`
	Quantity       int     `json:"quantity" validate:"required,min=1"`
	ImageURL       string  `json:"imageUrl"`
	Category       string  `json:"category"`
	IsSubscription bool    `json:"isSubscription"`
}

// Cart is the pre-payment collection of selected items. It is a plain value
// passed between the API layer and the session builder; the client remains
// the source of truth until checkout.
type Cart struct {
	Items []Item
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c Cart) Count() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Total returns the cart total in dollars, rounded to cents.
func (c Cart) Total() float64 {
	var cents int64
	for _, item := range c.Items {
		cents += item.UnitPriceCents() * int64(item.Quantity)
	}
	return float64(cents) / 100
}

// Add merges an item into the cart, summing quantities when the line already
// exists. Subscription variants carry distinct ids so they stay separate
// lines.
func (c *Cart) Add(item Item) {
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

func (c *Cart) Remove(itemID string) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// UpdateQuantity sets the quantity for a line; zero or less removes it.
func (c *Cart) UpdateQuantity(itemID string, quantity int) {
	if quantity < 1 {
		c.Remove(itemID)
		return
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Quantity = quantity
			return
		}
	}
}

// Partition splits the cart into subscription and one-time items, preserving
// order within each group.
func (c Cart) Partition() (subscription []Item, oneTime []Item) {
	for _, item := range c.Items {
		if item.IsSubscription {
			subscription = append(subscription, item)
		} else {
			oneTime = append(oneTime, item)
		}
	}
	return subscription, oneTime
}

// Validate rejects carts that cannot be turned into a checkout session.
func (c Cart) Validate() error {
	if c.IsEmpty() {
		return fmt.Errorf("no items in checkout")
	}
	for _, item := range c.Items {
		if item.ID == "" || item.Name == "" {
			return fmt.Errorf("cart item missing id or name")
		}
		if item.Quantity < 1 {
			return fmt.Errorf("invalid quantity %d for item %s", item.Quantity, item.ID)
		}
		if item.UnitPrice <= 0 {
			return fmt.Errorf("invalid price for item %s", item.ID)
		}
	}
	return nil
}

// UnitPriceCents converts the dollar price to integer minor units the way the
// payment provider expects them.
func (i Item) UnitPriceCents() int64 {
	return int64(math.Round(i.UnitPrice * 100))
}
