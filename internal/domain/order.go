package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// DeliveryDetails is the checkout form payload.
type DeliveryDetails struct {
	Address    string `json:"delivery_address" validate:"required,max=500"`
	City       string `json:"delivery_city" validate:"required,max=100"`
	PostalCode string `json:"delivery_postal_code" validate:"required,max=10"`
	Phone      string `json:"phone" validate:"required,max=20"`
	Notes      string `json:"notes" validate:"max=1000"`
}

// OrderItem keeps the unit price the book had when the order was placed.
type OrderItem struct {
	ID       string          `json:"id"`
	BookID   string          `json:"book_id"`
	Title    string          `json:"title"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type alias OrderItem
	return json.Marshal(struct {
		alias
		TotalPrice decimal.Decimal `json:"total_price"`
	}{alias(i), i.TotalPrice()})
}

type Order struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Status OrderStatus     `json:"status"`
	Total  decimal.Decimal `json:"total_price"`
	DeliveryDetails
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PlanCheckout turns a cart whose books reflect current stock into a pending
// order. Nothing is persisted.
func PlanCheckout(cart Cart, delivery DeliveryDetails, now time.Time) (*Order, error) {
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := cart.CheckStock(); err != nil {
		return nil, err
	}

	order := &Order{
		UserID:          cart.UserID,
		Status:          OrderStatusPending,
		Total:           cart.TotalPrice(),
		DeliveryDetails: delivery,
		Items:           make([]OrderItem, 0, len(cart.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, item := range cart.Items {
		order.Items = append(order.Items, OrderItem{
			BookID:   item.Book.ID,
			Title:    item.Book.Title,
			Quantity: item.Quantity,
			Price:    item.Book.FinalPrice(),
		})
	}

	return order, nil
}
