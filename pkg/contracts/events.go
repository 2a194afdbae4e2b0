package contracts

import "time"

// Event is the envelope published to the order-events topic. Consumers key
// deduplication on EventID; IntentID ties the event back to the gateway side.
type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   string         `json:"order_id"`
	IntentID  string         `json:"intent_id"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const (
	EventOrderCreated  = "order.created"
	EventOrderPaid     = "order.paid"
	EventOrderCanceled = "order.canceled"
)
