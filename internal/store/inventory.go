package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const inventoryColumns = `id, product_id, ingredients, alert_active, updated_at, updated_by_id`

// InventoryMutator adjusts a locked inventory record in place and reports whether
// its product must be taken off the menu.
type InventoryMutator func(rec *models.InventoryRecord) (suspend bool)

// InventoryBatchResult describes what one batch wrote
type InventoryBatchResult struct {
	Updated   []string
	Suspended []string
}

// ApplyInventoryBatch runs mutate over the inventory records of productIDs in a single
// transaction guarded by the processed marker. Each record is read under a row lock, so
// relative decrements from concurrent batches never apply to a stale copy. Products
// without an inventory record are skipped. Returns ErrAlreadyProcessed when the marker
// exists and nothing is written.
func (s *Store) ApplyInventoryBatch(ctx context.Context, marker string, productIDs []string, mutate InventoryMutator) (*InventoryBatchResult, error) {
	ids := append([]string(nil), productIDs...)
	// consistent lock order across concurrent batches
	sort.Strings(ids)

	result := &InventoryBatchResult{}
	err := s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		if err := claimEvent(ctx, tx, marker, models.EventTypeOrderStatusChanged, now); err != nil {
			return err
		}

		for _, productID := range ids {
			var rec models.InventoryRecord
			err := tx.GetContext(ctx, &rec,
				"SELECT "+inventoryColumns+" FROM inventory WHERE product_id = $1 FOR UPDATE", productID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to lock inventory for product %s: %w", productID, err)
			}

			suspend := mutate(&rec)

			if _, err := tx.ExecContext(ctx,
				"UPDATE inventory SET ingredients = $1, alert_active = $2, updated_at = $3 WHERE id = $4",
				rec.Ingredients, rec.AlertActive, now, rec.ID); err != nil {
				return fmt.Errorf("failed to update inventory %s: %w", rec.ID, err)
			}
			result.Updated = append(result.Updated, productID)

			if suspend {
				if _, err := tx.ExecContext(ctx,
					"UPDATE products SET available = FALSE WHERE id = $1", productID); err != nil {
					return fmt.Errorf("failed to suspend product %s: %w", productID, err)
				}
				result.Suspended = append(result.Suspended, productID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetInventoryByProduct retrieves the inventory record of a product
func (s *Store) GetInventoryByProduct(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT "+inventoryColumns+" FROM inventory WHERE product_id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory for product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateInventoryLocked locks the inventory record of a product, lets fn edit it and writes it
// back. fn may also ask for the product's availability to be set. Used by manual restock and
// reactivation.
func (s *Store) UpdateInventoryLocked(ctx context.Context, productID, actorID string, fn func(rec *models.InventoryRecord) (available *bool, err error)) error {
	return s.inTx(ctx, nil, func(tx *sqlx.Tx) error {
		var rec models.InventoryRecord
		err := tx.GetContext(ctx, &rec,
			"SELECT "+inventoryColumns+" FROM inventory WHERE product_id = $1 FOR UPDATE", productID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("inventory for product %s: %w", productID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock inventory: %w", err)
		}

		available, err := fn(&rec)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory SET ingredients = $1, alert_active = $2, updated_at = NOW(), updated_by_id = $3
			WHERE id = $4`,
			rec.Ingredients, rec.AlertActive, actorID, rec.ID); err != nil {
			return fmt.Errorf("failed to update inventory: %w", err)
		}

		if available != nil {
			res, err := tx.ExecContext(ctx,
				"UPDATE products SET available = $1 WHERE id = $2", *available, productID)
			if err != nil {
				return fmt.Errorf("failed to update product availability: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("product %s: %w", productID, ErrNotFound)
			}
		}
		return nil
	})
}
