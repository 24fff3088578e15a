package service

import (
	"context"
	"errors"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderStore reads orders and moves them between statuses conditionally. The change-feed
// entry built by emit is stored with the status change and relayed from the outbox.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, emit store.OrderChangeFunc) (*models.Order, error)
}

type transition struct {
	from  models.OrderStatus
	roles []models.Role
}

// transitions is keyed by target status. Paid is reached only through checkout.
var transitions = map[models.OrderStatus]transition{
	models.OrderStatusInPreparation: {
		from:  models.OrderStatusPending,
		roles: []models.Role{models.RoleKitchen, models.RoleAdmin},
	},
	models.OrderStatusReady: {
		from:  models.OrderStatusInPreparation,
		roles: []models.Role{models.RoleKitchen, models.RoleAdmin},
	},
	models.OrderStatusDelivered: {
		from:  models.OrderStatusReady,
		roles: []models.Role{models.RoleWaiter, models.RoleCashier, models.RoleAdmin},
	},
}

// OrderService drives order status changes and feeds them to the change feed
type OrderService struct {
	guard  *RoleGuard
	store  OrderStore
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(guard *RoleGuard, store OrderStore) *OrderService {
	return &OrderService{
		guard:  guard,
		store:  store,
		logger: util.GetLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AdvanceOrderStatus moves an order one step forward in its lifecycle
func (s *OrderService) AdvanceOrderStatus(ctx context.Context, uid, orderID string, to models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdvanceOrderStatus",
		attribute.String("order_id", orderID),
		attribute.String("status", string(to)))
	defer span.End()

	user, err := s.guard.Authorize(ctx, uid, allRoles...)
	if err != nil {
		return nil, err
	}

	if orderID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "order id is required")
	}
	rule, ok := transitions[to]
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "cannot move an order to "+string(to))
	}
	if !hasRole(user, rule.roles) {
		return nil, apperr.New(apperr.PermissionDenied, "role "+string(user.Role)+" cannot move an order to "+string(to))
	}

	current, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "order not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load order", err)
	}
	if current.Status != rule.from {
		return nil, apperr.New(apperr.FailedPrecondition,
			"order is "+string(current.Status)+", expected "+string(rule.from))
	}

	order, err := s.store.TransitionOrderStatus(ctx, orderID, rule.from, to, func(updated *models.Order) (*models.OutboxMessage, error) {
		return orderChangeMessage(updated, rule.from, user.ID, s.now())
	})
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, apperr.New(apperr.FailedPrecondition, "order status changed concurrently")
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Wrap(apperr.Internal, "failed to update order status", err)
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(rule.from)),
		zap.String("to", string(to)),
		zap.String("changed_by", user.ID))

	return order, nil
}

// orderChangeMessage is the change-feed entry for order, which has just left status from
func orderChangeMessage(order *models.Order, from models.OrderStatus, changedBy string, at time.Time) (*models.OutboxMessage, error) {
	return models.NewOrderChangeMessage(&models.OrderStatusChangedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderStatusChanged, at),
		OrderID:        order.ID,
		PreviousStatus: from,
		Status:         order.Status,
		TableID:        order.TableID,
		Items:          order.Items,
		ChangedBy:      changedBy,
	})
}
