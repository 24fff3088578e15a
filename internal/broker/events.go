package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter writes one keyed event to a topic. Producer implements it.
type EventWriter interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	writer     EventWriter
	orderTopic string
	salesTopic string
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(writer EventWriter, orderTopic, salesTopic string) *EventPublisher {
	return &EventPublisher{writer: writer, orderTopic: orderTopic, salesTopic: salesTopic}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishSaleRecorded publishes SaleRecorded event
func (ep *EventPublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	return ep.writer.PublishEvent(ctx, ep.salesTopic, fmt.Sprintf("shift-%s", event.ShiftID), event)
}

// PublishShiftClosed publishes ShiftClosed event
func (ep *EventPublisher) PublishShiftClosed(ctx context.Context, event *models.ShiftClosedEvent) error {
	return ep.writer.PublishEvent(ctx, ep.salesTopic, fmt.Sprintf("shift-%s", event.ShiftID), event)
}

// PublishStockAlert publishes StockAlert event
func (ep *EventPublisher) PublishStockAlert(ctx context.Context, event *models.StockAlertEvent) error {
	return ep.writer.PublishEvent(ctx, ep.orderTopic, orderKey(event.OrderID), event)
}

// PublishOutboxMessage publishes an already encoded event from the outbox. Order events are
// keyed by order so a single order's transitions stay ordered within a partition.
func (ep *EventPublisher) PublishOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error {
	payload := json.RawMessage(msg.Payload)
	switch msg.EventType {
	case models.EventTypeOrderStatusChanged, models.EventTypeStockAlert:
		return ep.writer.PublishEvent(ctx, ep.orderTopic, orderKey(msg.AggregateID), payload)
	case models.EventTypeSaleRecorded, models.EventTypeShiftClosed:
		return ep.writer.PublishEvent(ctx, ep.salesTopic, fmt.Sprintf("shift-%s", msg.AggregateID), payload)
	default:
		return fmt.Errorf("no topic for event type %q", msg.EventType)
	}
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
	logger               *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

// HandleMessage routes messages to appropriate handlers. Messages that cannot be decoded
// are logged and acknowledged; redelivering them would never succeed.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping undecodable event",
			zap.ByteString("key", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderStatusChanged:
		if eh.onOrderStatusChanged == nil {
			return nil
		}
		var event models.OrderStatusChangedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			eh.logger.Error("Dropping undecodable OrderStatusChanged event",
				zap.String("event_id", baseEvent.EventID),
				zap.Error(err))
			return nil
		}
		return eh.onOrderStatusChanged(ctx, &event)

	default:
		eh.logger.Debug("Ignoring event", zap.String("type", baseEvent.EventType))
	}

	return nil
}
