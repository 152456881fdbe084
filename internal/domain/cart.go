package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ID       string `json:"id"`
	CartID   string `json:"cart_id"`
	Book     Book   `json:"book"`
	Quantity int    `json:"quantity"`
}

func (i CartItem) TotalPrice() decimal.Decimal {
	return i.Book.FinalPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i CartItem) MarshalJSON() ([]byte, error) {
	type alias CartItem
	return json.Marshal(struct {
		alias
		TotalPrice decimal.Decimal `json:"total_price"`
	}{alias(i), i.TotalPrice()})
}

// Cart is owned by exactly one user.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// CheckStock returns a *StockError for the first item whose quantity exceeds
// the current stock of its book.
func (c Cart) CheckStock() error {
	for _, item := range c.Items {
		if item.Quantity > item.Book.Stock {
			return &StockError{
				BookID:    item.Book.ID,
				Title:     item.Book.Title,
				Requested: item.Quantity,
				Available: item.Book.Stock,
			}
		}
	}
	return nil
}

func (c Cart) MarshalJSON() ([]byte, error) {
	type alias Cart
	items := c.Items
	if items == nil {
		items = []CartItem{}
	}
	c.Items = items
	return json.Marshal(struct {
		alias
		TotalItems int             `json:"total_items"`
		TotalPrice decimal.Decimal `json:"total_price"`
	}{alias(c), c.TotalItems(), c.TotalPrice()})
}
