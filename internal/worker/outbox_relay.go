package worker

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// OutboxStore hands out pending outbox messages oldest first
type OutboxStore interface {
	FetchOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	DeleteOutbox(ctx context.Context, id string) error
}

// OutboxPublisher writes a stored message to the broker. broker.EventPublisher implements it.
type OutboxPublisher interface {
	PublishOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error
}

// OutboxRelay moves messages from the outbox to the broker. A message is deleted only after
// the broker accepted it, so a crash in between publishes it again.
type OutboxRelay struct {
	store     OutboxStore
	publisher OutboxPublisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewOutboxRelay creates a relay polling every interval
func NewOutboxRelay(store OutboxStore, publisher OutboxPublisher, interval time.Duration, batchSize int) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    util.GetLogger(),
	}
}

// RelayOnce publishes one batch in outbox order and returns how many messages left the outbox.
// It stops at the first failed publish so later changes of the same order never overtake it.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := r.store.FetchOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	relayed := 0
	for i := range msgs {
		msg := &msgs[i]
		if err := r.publisher.PublishOutboxMessage(ctx, msg); err != nil {
			util.OutboxMessagesTotal.WithLabelValues("failed").Inc()
			return relayed, fmt.Errorf("failed to relay outbox message %s: %w", msg.ID, err)
		}
		if err := r.store.DeleteOutbox(ctx, msg.ID); err != nil {
			return relayed, err
		}
		util.OutboxMessagesTotal.WithLabelValues("relayed").Inc()
		relayed++
	}
	return relayed, nil
}

// Start relays until ctx is cancelled. A full batch is followed immediately by the next one.
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		relayed, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("Outbox relay failed", zap.Int("relayed", relayed), zap.Error(err))
		}
		if err == nil && relayed == r.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Stopping outbox relay")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
