package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
)

// IsTerminal reports whether no further transition is allowed. Webhook
// replays, cancel requests and status sync all stop at a terminal order.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCanceled
}

func (s OrderStatus) String() string {
	return string(s)
}

type Order struct {
	ID              string      `json:"id"`
	PaymentIntentID string      `json:"payment_intent_id"`
	ProductID       string      `json:"product_id"`
	Email           string      `json:"email,omitempty"`
	Amount          int64       `json:"amount"` // minor units (satang)
	Currency        string      `json:"currency"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// OrderWithProduct is the my-orders view: each order joined with the
// product it was placed for, nil when the product has since been deleted.
type OrderWithProduct struct {
	Order
	Product *Product `json:"product"`
}
