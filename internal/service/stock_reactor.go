package service

import (
	"context"
	"errors"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryBatchStore applies one order's inventory changes atomically
type InventoryBatchStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	ApplyInventoryBatch(ctx context.Context, marker string, productIDs []string, mutate store.InventoryMutator) (*store.InventoryBatchResult, error)
}

// StockAlertPublisher announces products taken off the menu
type StockAlertPublisher interface {
	PublishStockAlert(ctx context.Context, event *models.StockAlertEvent) error
}

// StockReactor decrements ingredient stock when an order starts preparation
type StockReactor struct {
	store     InventoryBatchStore
	publisher StockAlertPublisher
	logger    *zap.Logger
}

// NewStockReactor creates a new stock reactor. publisher may be nil.
func NewStockReactor(store InventoryBatchStore, publisher StockAlertPublisher) *StockReactor {
	return &StockReactor{store: store, publisher: publisher, logger: util.GetLogger()}
}

func stockMarker(orderID string) string {
	return "stock:" + orderID
}

// HandleOrderStatusChanged reacts to pending -> in_preparation and ignores every other
// transition. It never returns an error: failures are logged and the event is considered handled.
func (r *StockReactor) HandleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if !event.StartsPreparation() {
		util.StockEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	ctx, span := util.StartSpan(ctx, "StockReactor.HandleOrderStatusChanged", attribute.String("order_id", event.OrderID))
	defer span.End()

	quantities := orderQuantities(event.Items)
	if len(quantities) == 0 {
		util.StockEventsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	// the marker claimed inside the batch stays the authoritative guard
	marker := stockMarker(event.OrderID)
	processed, err := r.store.IsEventProcessed(ctx, marker)
	if err != nil {
		r.logger.Warn("Processed marker lookup failed", zap.String("order_id", event.OrderID), zap.Error(err))
	}
	if processed {
		util.StockEventsTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("Stock already decremented for order", zap.String("order_id", event.OrderID))
		return nil
	}

	productIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		productIDs = append(productIDs, id)
	}

	result, err := r.store.ApplyInventoryBatch(ctx, marker, productIDs,
		func(rec *models.InventoryRecord) bool {
			var below bool
			rec.Ingredients, below = decrementIngredients(rec.Ingredients, quantities[rec.ProductID])
			if below {
				rec.AlertActive = true
			}
			return below
		})
	if errors.Is(err, store.ErrAlreadyProcessed) {
		util.StockEventsTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("Stock already decremented for order", zap.String("order_id", event.OrderID))
		return nil
	}
	if err != nil {
		util.StockEventsTotal.WithLabelValues("failed").Inc()
		util.RecordError(span, err)
		r.logger.Error("Stock decrement failed",
			zap.String("order_id", event.OrderID),
			zap.Strings("product_ids", productIDs),
			zap.Error(err))
		return nil
	}

	util.StockEventsTotal.WithLabelValues("applied").Inc()
	r.logger.Info("Stock decremented",
		zap.String("order_id", event.OrderID),
		zap.Strings("updated", result.Updated),
		zap.Strings("suspended", result.Suspended))

	if len(result.Suspended) > 0 {
		util.ProductsSuspendedTotal.Add(float64(len(result.Suspended)))
		r.publishAlert(ctx, event.OrderID, result.Suspended)
	}
	return nil
}

func (r *StockReactor) publishAlert(ctx context.Context, orderID string, productIDs []string) {
	if r.publisher == nil {
		return
	}
	alert := &models.StockAlertEvent{
		BaseEvent:  newBaseEvent(models.EventTypeStockAlert, time.Now().UTC()),
		OrderID:    orderID,
		ProductIDs: productIDs,
	}
	if err := r.publisher.PublishStockAlert(ctx, alert); err != nil {
		r.logger.Error("Failed to publish StockAlert event", zap.String("order_id", orderID), zap.Error(err))
	}
}

// orderQuantities sums positive quantities per product
func orderQuantities(items models.LineItems) map[string]int {
	quantities := make(map[string]int)
	for _, item := range items {
		if item.Quantity <= 0 || item.ProductID == "" {
			continue
		}
		quantities[item.ProductID] += item.Quantity
	}
	return quantities
}

// decrementIngredients takes qty off every ingredient, clamping at zero, and reports whether
// any ingredient ends below its minimum
func decrementIngredients(ingredients models.Ingredients, qty int) (models.Ingredients, bool) {
	out := make(models.Ingredients, len(ingredients))
	below := false
	for i, ing := range ingredients {
		ing.CurrentStock -= qty
		if ing.CurrentStock < 0 {
			ing.CurrentStock = 0
		}
		if ing.CurrentStock < ing.MinimumStock {
			below = true
		}
		out[i] = ing
	}
	return out, below
}
