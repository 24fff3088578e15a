package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeSaleRecorded       = "SALE_RECORDED"
	EventTypeShiftClosed        = "SHIFT_CLOSED"
	EventTypeStockAlert         = "STOCK_ALERT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChangedEvent is the change-feed entry for an order document.
// Items is the after-image of the order's line items.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        string      `json:"order_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
	Status         OrderStatus `json:"status"`
	TableID        *string     `json:"table_id,omitempty"`
	Items          LineItems   `json:"items"`
	ChangedBy      string      `json:"changed_by"`
}

// StartsPreparation reports whether the event is the pending -> in_preparation transition
func (e *OrderStatusChangedEvent) StartsPreparation() bool {
	return e.PreviousStatus == OrderStatusPending && e.Status == OrderStatusInPreparation
}

// SaleRecordedEvent is published after a sale record is durable
type SaleRecordedEvent struct {
	BaseEvent
	SaleID        string          `json:"sale_id"`
	OrderID       string          `json:"order_id"`
	ShiftID       string          `json:"shift_id"`
	CashierID     string          `json:"cashier_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
}

// ShiftClosedEvent is published after a shift is reconciled
type ShiftClosedEvent struct {
	BaseEvent
	ShiftID   string       `json:"shift_id"`
	CashierID string       `json:"cashier_id"`
	Summary   ShiftSummary `json:"summary"`
}

// StockAlertEvent is published when the reactor takes a product off the menu
type StockAlertEvent struct {
	BaseEvent
	OrderID    string   `json:"order_id"`
	ProductIDs []string `json:"product_ids"`
}

// OutboxMessage is an event written in the same transaction as the change it describes.
// It stays in the outbox until the relay has handed it to the broker.
type OutboxMessage struct {
	ID          string    `db:"id"`
	EventType   string    `db:"event_type"`
	AggregateID string    `db:"aggregate_id"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}

// NewOrderChangeMessage encodes an order status change for the outbox
func NewOrderChangeMessage(event *OrderStatusChangedEvent) (*OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order change: %w", err)
	}
	return &OutboxMessage{
		ID:          event.EventID,
		EventType:   event.EventType,
		AggregateID: event.OrderID,
		Payload:     payload,
		CreatedAt:   event.Timestamp,
	}, nil
}
