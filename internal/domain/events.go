package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderPlacedEvent struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Email     string          `json:"email"`
	Username  string          `json:"username"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total_price"`
	Timestamp time.Time       `json:"timestamp"`
}
