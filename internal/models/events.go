package models

import "time"

// Event types
const (
	EventTypeOrderValidated     = "ORDER_VALIDATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderValidatedEvent is published when a cart is validated into a
// placed order; the supplier is the recipient.
type OrderValidatedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	SupplierID    int64  `json:"supplier_id"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	TotalItems    int    `json:"total_items"`
	Status        string `json:"status"`
}

// OrderStatusChangedEvent is published when an order status is updated;
// the placing customer is the recipient.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	UserID    int64  `json:"user_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}
