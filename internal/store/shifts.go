package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const shiftColumns = `id, cashier_id, status, opening_float, opened_at, closed_at, summary,
	expected_cash, counted_cash, cash_difference, close_notes`

// maxSerializableAttempts bounds retries of serialization failures on shift creation
const maxSerializableAttempts = 3

// CloseShiftFunc inspects a locked open-or-closed shift together with its sales and returns
// what to write on close. An error aborts the close without writing.
type CloseShiftFunc func(shift *models.CashShift, sales []models.SaleRecord) (*models.ShiftClosing, error)

// OpenShift inserts a new open shift. The existence check and the insert run in one
// serializable transaction; the partial unique index backs it up.
func (s *Store) OpenShift(ctx context.Context, shift *models.CashShift) error {
	var err error
	for attempt := 0; attempt < maxSerializableAttempts; attempt++ {
		err = s.inTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(tx *sqlx.Tx) error {
			var open bool
			if err := tx.GetContext(ctx, &open,
				"SELECT EXISTS(SELECT 1 FROM cash_shifts WHERE cashier_id = $1 AND status = 'open')",
				shift.CashierID); err != nil {
				return err
			}
			if open {
				return ErrShiftAlreadyOpen
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO cash_shifts (id, cashier_id, status, opening_float, opened_at)
				VALUES ($1, $2, $3, $4, $5)`,
				shift.ID, shift.CashierID, shift.Status, shift.OpeningFloat, shift.OpenedAt)
			return err
		})
		if !isSerializationFailure(err) {
			break
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrShiftAlreadyOpen), isUniqueViolation(err):
		return ErrShiftAlreadyOpen
	default:
		return fmt.Errorf("failed to open shift: %w", err)
	}
}

// GetShift retrieves a shift by ID
func (s *Store) GetShift(ctx context.Context, id string) (*models.CashShift, error) {
	var shift models.CashShift
	err := s.db.GetContext(ctx, &shift,
		"SELECT "+shiftColumns+" FROM cash_shifts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

// GetOpenShiftByCashier returns the cashier's open shift, nil when there is none
func (s *Store) GetOpenShiftByCashier(ctx context.Context, cashierID string) (*models.CashShift, error) {
	var shift models.CashShift
	err := s.db.GetContext(ctx, &shift,
		"SELECT "+shiftColumns+" FROM cash_shifts WHERE cashier_id = $1 AND status = 'open' LIMIT 1",
		cashierID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

// CloseShift locks the shift row, reads its sales ledger and writes the closing computed by fn.
// Sales committed before the lock is taken are always part of the ledger handed to fn; sales
// attempted afterwards see the shift closed (see RecordSale).
func (s *Store) CloseShift(ctx context.Context, shiftID string, fn CloseShiftFunc) error {
	return s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		var shift models.CashShift
		err := tx.GetContext(ctx, &shift,
			"SELECT "+shiftColumns+" FROM cash_shifts WHERE id = $1 FOR UPDATE", shiftID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("shift %s: %w", shiftID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock shift: %w", err)
		}

		sales, err := selectSales(ctx, tx, shiftID)
		if err != nil {
			return err
		}

		closing, err := fn(&shift, sales)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE cash_shifts
			SET status = 'closed', closed_at = $1, summary = $2, expected_cash = $3,
			    counted_cash = $4, cash_difference = $5, close_notes = $6
			WHERE id = $7 AND status = 'open'`,
			closing.ClosedAt, closing.Summary, closing.ExpectedCash,
			closing.CountedCash, closing.CashDifference, closing.Notes, shiftID)
		if err != nil {
			return fmt.Errorf("failed to close shift: %w", err)
		}
		return nil
	})
}
