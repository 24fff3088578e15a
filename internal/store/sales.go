package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const saleColumns = `id, order_id, table_id, shift_id, cashier_id, cashier_name, payment_method,
	items, subtotal, discount, tax, total_paid, customer, paid_at`

// RecordSale is the authoritative write of a checkout. In one transaction it
// holds the shift open (FOR SHARE), claims the order by moving it delivered -> paid,
// inserts the sale and writes the outbox messages that go with it. Direct sales skip the order claim.
func (s *Store) RecordSale(ctx context.Context, sale *models.SaleRecord, outbox ...*models.OutboxMessage) error {
	return s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		var status models.ShiftStatus
		err := tx.GetContext(ctx, &status,
			"SELECT status FROM cash_shifts WHERE id = $1 FOR SHARE", sale.ShiftID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && status != models.ShiftStatusOpen) {
			return ErrShiftNotOpen
		}
		if err != nil {
			return fmt.Errorf("failed to lock shift: %w", err)
		}

		if sale.OrderID != models.DirectSaleOrderID {
			res, err := tx.ExecContext(ctx,
				"UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
				models.OrderStatusPaid, sale.PaidAt, sale.OrderID, models.OrderStatusDelivered)
			if err != nil {
				return fmt.Errorf("failed to mark order paid: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrOrderNotPayable
			}
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO sales (`+saleColumns+`)
			VALUES (:id, :order_id, :table_id, :shift_id, :cashier_id, :cashier_name, :payment_method,
			        :items, :subtotal, :discount, :tax, :total_paid, :customer, :paid_at)`,
			sale)
		if isUniqueViolation(err) {
			return ErrOrderNotPayable
		}
		if err != nil {
			return fmt.Errorf("failed to insert sale: %w", err)
		}
		return insertOutbox(ctx, tx, outbox...)
	})
}

// GetSalesByShift returns the sales ledger of a shift
func (s *Store) GetSalesByShift(ctx context.Context, shiftID string) ([]models.SaleRecord, error) {
	return selectSales(ctx, s.db, shiftID)
}

func selectSales(ctx context.Context, q sqlx.QueryerContext, shiftID string) ([]models.SaleRecord, error) {
	var sales []models.SaleRecord
	err := sqlx.SelectContext(ctx, q, &sales,
		"SELECT "+saleColumns+" FROM sales WHERE shift_id = $1 ORDER BY paid_at", shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sales: %w", err)
	}
	return sales, nil
}
