package service

import (
	"context"
	"errors"
	"testing"

	"pos-service/internal/apperr"
	"pos-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture(status models.OrderStatus) (*fakeStore, *OrderService) {
	fs := newFakeStore()
	fs.addStaff("kitchen-1", models.RoleKitchen, true)
	fs.addStaff("waiter-1", models.RoleWaiter, true)
	fs.orders["order-1"] = &models.Order{
		ID:     "order-1",
		Status: status,
		Items:  models.LineItems{{ProductID: "burger", Quantity: 2, UnitPrice: money("8.00")}},
	}
	return fs, NewOrderService(NewRoleGuard(fs), fs)
}

func TestAdvanceOrderStatus(t *testing.T) {
	fs, svc := newOrderFixture(models.OrderStatusPending)

	order, err := svc.AdvanceOrderStatus(context.Background(), "kitchen-1", "order-1", models.OrderStatusInPreparation)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusInPreparation, order.Status)
	assert.Equal(t, models.OrderStatusInPreparation, fs.orders["order-1"].Status)

	changes := fs.orderChanges(t)
	require.Len(t, changes, 1)
	event := changes[0]
	assert.True(t, event.StartsPreparation())
	assert.Equal(t, "kitchen-1", event.ChangedBy)
	assert.Len(t, event.Items, 1)
}

func TestAdvanceOrderStatusRules(t *testing.T) {
	tests := []struct {
		name string
		uid  string
		from models.OrderStatus
		to   models.OrderStatus
		code apperr.Code
	}{
		{name: "waiter cannot start preparation", uid: "waiter-1", from: models.OrderStatusPending, to: models.OrderStatusInPreparation, code: apperr.PermissionDenied},
		{name: "kitchen cannot deliver", uid: "kitchen-1", from: models.OrderStatusReady, to: models.OrderStatusDelivered, code: apperr.PermissionDenied},
		{name: "paid only through checkout", uid: "waiter-1", from: models.OrderStatusDelivered, to: models.OrderStatusPaid, code: apperr.InvalidArgument},
		{name: "skipping a step", uid: "kitchen-1", from: models.OrderStatusPending, to: models.OrderStatusReady, code: apperr.FailedPrecondition},
		{name: "waiter delivers", uid: "waiter-1", from: models.OrderStatusReady, to: models.OrderStatusDelivered},
		{name: "kitchen marks ready", uid: "kitchen-1", from: models.OrderStatusInPreparation, to: models.OrderStatusReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, svc := newOrderFixture(tt.from)

			_, err := svc.AdvanceOrderStatus(context.Background(), tt.uid, "order-1", tt.to)

			if tt.code != "" {
				assert.Equal(t, tt.code, apperr.CodeOf(err))
				assert.Equal(t, tt.from, fs.orders["order-1"].Status)
				assert.Empty(t, fs.orderChanges(t))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, fs.orders["order-1"].Status)
			assert.Len(t, fs.orderChanges(t), 1)
		})
	}
}

func TestAdvanceOrderStatusUnknownOrder(t *testing.T) {
	_, svc := newOrderFixture(models.OrderStatusPending)

	_, err := svc.AdvanceOrderStatus(context.Background(), "kitchen-1", "missing", models.OrderStatusInPreparation)

	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestAdvanceOrderStatusOutboxFailureKeepsStatus(t *testing.T) {
	fs, svc := newOrderFixture(models.OrderStatusPending)
	fs.emitErr = errors.New("outbox unavailable")

	_, err := svc.AdvanceOrderStatus(context.Background(), "kitchen-1", "order-1", models.OrderStatusInPreparation)

	assert.Equal(t, apperr.Internal, apperr.CodeOf(err))
	assert.Equal(t, models.OrderStatusPending, fs.orders["order-1"].Status)
	assert.Empty(t, fs.orderChanges(t))

	// nothing was lost, so the same transition can be retried
	fs.emitErr = nil
	_, err = svc.AdvanceOrderStatus(context.Background(), "kitchen-1", "order-1", models.OrderStatusInPreparation)
	require.NoError(t, err)
	assert.Len(t, fs.orderChanges(t), 1)
}

func TestAdvanceThenReact(t *testing.T) {
	fs, svc := newOrderFixture(models.OrderStatusPending)
	pub := &fakePublisher{}
	fs.inventory["burger"] = &models.InventoryRecord{
		ProductID:   "burger",
		Ingredients: models.Ingredients{{Name: "bun", CurrentStock: 10, MinimumStock: 5}},
	}
	reactor := NewStockReactor(fs, pub)

	_, err := svc.AdvanceOrderStatus(context.Background(), "kitchen-1", "order-1", models.OrderStatusInPreparation)
	require.NoError(t, err)
	changes := fs.orderChanges(t)
	require.Len(t, changes, 1)

	require.NoError(t, reactor.HandleOrderStatusChanged(context.Background(), changes[0]))

	assert.Equal(t, 8, fs.inventory["burger"].Ingredients[0].CurrentStock)
}
