package worker

import (
	"context"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// MessageSource delivers messages to a handler until its context ends. broker.Consumer implements it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// OrderEventReactor reacts to order status changes
type OrderEventReactor interface {
	HandleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// StockWorker feeds the order change feed to the stock reactor
type StockWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockWorker creates a new stock worker
func NewStockWorker(source MessageSource, reactor OrderEventReactor) *StockWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(reactor.HandleOrderStatusChanged)

	return &StockWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *StockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	w.logger.Info("Stopping stock worker")
	return w.source.Close()
}
