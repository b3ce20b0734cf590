package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID           uuid.UUID       `json:"id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

type OrderItem struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type OrderWithItems struct {
	Order
	Items []OrderItem `json:"items"`
}

// IsPayable reports whether payment instructions may be issued for the order.
func (o *Order) IsPayable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// OrderStore supplies order facts for instruction generation and receipts.
type OrderStore interface {
	GetByID(id uuid.UUID) (*Order, error)
	GetByIDWithItems(id uuid.UUID) (*OrderWithItems, error)
}
