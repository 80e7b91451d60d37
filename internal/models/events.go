package models

import "time"

// Event types
const (
	EventTypeOrderSettled  = "ORDER_SETTLED"
	EventTypeOrderReversed = "ORDER_REVERSED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData carries line details on the wire
type OrderLineData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Subtotal  int64 `json:"subtotal"`
}

// OrderSettledEvent published after a settlement commits
type OrderSettledEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Total   int64           `json:"total"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderReversedEvent published after a reversal commits
type OrderReversedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Lines   []OrderLineData `json:"lines"`
}
