package service

import (
	"context"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// DiscountStore increments discount usage counters atomically
type DiscountStore interface {
	IncrementDiscountUsage(ctx context.Context, discountID string) (*models.Discount, error)
}

// DiscountLedger records discount redemptions. It is called only after a sale is recorded
// and its failures never undo that sale.
type DiscountLedger struct {
	store  DiscountStore
	logger *zap.Logger
}

// NewDiscountLedger creates a new discount ledger
func NewDiscountLedger(store DiscountStore) *DiscountLedger {
	return &DiscountLedger{store: store, logger: util.GetLogger()}
}

// RecordUsage adds one use to a discount. The increment is unconditional; going over
// the usage cap is only reported.
func (l *DiscountLedger) RecordUsage(ctx context.Context, discountID string) error {
	ctx, span := util.StartSpan(ctx, "DiscountLedger.RecordUsage")
	defer span.End()

	d, err := l.store.IncrementDiscountUsage(ctx, discountID)
	if err != nil {
		util.DiscountUsesTotal.WithLabelValues("failed").Inc()
		util.RecordError(span, err)
		return err
	}

	if d.MaxUses != nil && d.CurrentUses > *d.MaxUses {
		util.DiscountUsesTotal.WithLabelValues("over_cap").Inc()
		l.logger.Warn("Discount used beyond its cap",
			zap.String("discount_id", d.ID),
			zap.Int("current_uses", d.CurrentUses),
			zap.Int("max_uses", *d.MaxUses))
		return nil
	}

	util.DiscountUsesTotal.WithLabelValues("recorded").Inc()
	return nil
}
