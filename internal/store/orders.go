package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, table_id, items, discount, status, created_at, updated_at`

// GetStaffUser retrieves a staff member, nil when absent
func (s *Store) GetStaffUser(ctx context.Context, id string) (*models.StaffUser, error) {
	var user models.StaffUser
	err := s.db.GetContext(ctx, &user,
		"SELECT id, name, role, active FROM staff_users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrderStatus moves an order from one status to another. When emit is set, the
// message it builds from the updated order is written to the outbox in the same transaction.
// Returns ErrStatusConflict when the order is no longer in the expected status.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, emit OrderChangeFunc) (*models.Order, error) {
	var order models.Order
	err := s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &order, `
			UPDATE orders SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = $3
			RETURNING `+orderColumns,
			to, orderID, from)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusConflict
		}
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		if emit == nil {
			return nil
		}
		msg, err := emit(&order)
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, msg)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ReleaseTable clears a table's active order and flags it for cleaning
func (s *Store) ReleaseTable(ctx context.Context, tableID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE dining_tables SET active_order_id = NULL, state = $1 WHERE id = $2",
		models.TableStateDirty, tableID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	return nil
}

// GetTaxRatePercent reads the configured tax rate
func (s *Store) GetTaxRatePercent(ctx context.Context) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := s.db.GetContext(ctx, &rate,
		"SELECT tax_rate_percent FROM business_config WHERE id = 'general'")
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("business config: %w", ErrNotFound)
	}
	return rate, err
}

// IncrementDiscountUsage atomically bumps a discount's usage counter and returns the updated discount
func (s *Store) IncrementDiscountUsage(ctx context.Context, discountID string) (*models.Discount, error) {
	var d models.Discount
	err := s.db.GetContext(ctx, &d, `
		UPDATE discounts SET current_uses = current_uses + 1
		WHERE id = $1
		RETURNING id, name, type, value, conditions, coupon_code, max_uses,
		          current_uses, active, valid_from, valid_until`,
		discountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discount %s: %w", discountID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// claimEvent records a processed marker inside tx. ErrAlreadyProcessed if it was already there.
func claimEvent(ctx context.Context, tx execer, eventID, eventType string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type, processed_at) VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType, at)
	if err != nil {
		return fmt.Errorf("failed to record processed marker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
