package service

import (
	"context"
	"errors"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventoryAdminStore reads inventory records and edits one under a row lock
type InventoryAdminStore interface {
	GetInventoryByProduct(ctx context.Context, productID string) (*models.InventoryRecord, error)
	UpdateInventoryLocked(ctx context.Context, productID, actorID string, fn func(rec *models.InventoryRecord) (available *bool, err error)) error
}

// InventoryService holds the explicit human actions on inventory
type InventoryService struct {
	guard  *RoleGuard
	store  InventoryAdminStore
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(guard *RoleGuard, store InventoryAdminStore) *InventoryService {
	return &InventoryService{guard: guard, store: store, logger: util.GetLogger()}
}

// GetInventory returns a product's ingredient stock and alert flag
func (s *InventoryService) GetInventory(ctx context.Context, uid, productID string) (*models.InventoryRecord, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetInventory", attribute.String("product_id", productID))
	defer span.End()

	if _, err := s.guard.Authorize(ctx, uid, allRoles...); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "product id is required")
	}

	rec, err := s.store.GetInventoryByProduct(ctx, productID)
	if err != nil {
		return nil, s.mapError(span, "failed to load inventory", err)
	}
	return rec, nil
}

// ReactivateProduct puts a suspended product back on the menu once every ingredient is
// at or above its minimum
func (s *InventoryService) ReactivateProduct(ctx context.Context, uid, productID string) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.ReactivateProduct", attribute.String("product_id", productID))
	defer span.End()

	user, err := s.guard.Authorize(ctx, uid, models.RoleAdmin)
	if err != nil {
		return err
	}
	if productID == "" {
		return apperr.New(apperr.InvalidArgument, "product id is required")
	}

	err = s.store.UpdateInventoryLocked(ctx, productID, user.ID, func(rec *models.InventoryRecord) (*bool, error) {
		if rec.Ingredients.BelowMinimum() {
			return nil, apperr.New(apperr.FailedPrecondition, "some ingredients are still below their minimum")
		}
		rec.AlertActive = false
		available := true
		return &available, nil
	})
	if err != nil {
		return s.mapError(span, "failed to reactivate product", err)
	}

	s.logger.Info("Product reactivated", zap.String("product_id", productID), zap.String("by", user.ID))
	return nil
}

// RestockIngredient adds quantity to one ingredient of a product. It never reactivates the product.
func (s *InventoryService) RestockIngredient(ctx context.Context, uid, productID, ingredient string, quantity int) (*models.InventoryRecord, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.RestockIngredient", attribute.String("product_id", productID))
	defer span.End()

	user, err := s.guard.Authorize(ctx, uid, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if productID == "" || ingredient == "" {
		return nil, apperr.New(apperr.InvalidArgument, "product id and ingredient are required")
	}
	if quantity <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "quantity must be positive")
	}

	var updated models.InventoryRecord
	err = s.store.UpdateInventoryLocked(ctx, productID, user.ID, func(rec *models.InventoryRecord) (*bool, error) {
		for i := range rec.Ingredients {
			if rec.Ingredients[i].Name == ingredient {
				rec.Ingredients[i].CurrentStock += quantity
				updated = *rec
				updated.UpdatedByID = user.ID
				return nil, nil
			}
		}
		return nil, store.ErrUnknownIngredient
	})
	if err != nil {
		return nil, s.mapError(span, "failed to restock ingredient", err)
	}

	s.logger.Info("Ingredient restocked",
		zap.String("product_id", productID),
		zap.String("ingredient", ingredient),
		zap.Int("quantity", quantity),
		zap.String("by", user.ID))
	return &updated, nil
}

func (s *InventoryService) mapError(span trace.Span, msg string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "no inventory record for product")
	}
	if errors.Is(err, store.ErrUnknownIngredient) {
		return apperr.Wrap(apperr.NotFound, "ingredient not tracked for product", err)
	}
	if _, coded := asCoded(err); coded {
		return err
	}
	util.RecordError(span, err)
	return apperr.Wrap(apperr.Internal, msg, err)
}
