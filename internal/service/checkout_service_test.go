package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkoutFixture struct {
	store     *fakeStore
	publisher *fakePublisher
	svc       *CheckoutService
}

func newCheckoutFixture() *checkoutFixture {
	fs := newFakeStore()
	fs.addStaff("cashier-1", models.RoleCashier, true)
	fs.addStaff("waiter-1", models.RoleWaiter, true)
	fs.addOpenShift("shift-1", "cashier-1")
	fs.taxRate = decimal.NewFromInt(16)
	fs.tables["table-4"] = models.TableStateOccupied
	fs.discounts["promo"] = &models.Discount{ID: "promo", Name: "Promo", Type: models.DiscountFixedAmount, Value: money("3.00"), Active: true}

	table := "table-4"
	fs.orders["order-1"] = &models.Order{
		ID:      "order-1",
		TableID: &table,
		Status:  models.OrderStatusDelivered,
		Items: models.LineItems{
			{ProductID: "p1", Name: "Tacos", UnitPrice: money("10.00"), Quantity: 2},
			{ProductID: "p2", Name: "Soup", UnitPrice: money("5.00"), Quantity: 1, Modifiers: []models.AppliedModifier{
				{GroupID: "g1", OptionID: "o1", Name: "Extra", Price: money("1.00")},
			}},
		},
		Discount: &models.AppliedDiscount{DiscountID: "promo", Name: "Promo", Amount: money("3.00")},
	}

	pub := &fakePublisher{}
	guard := NewRoleGuard(fs)
	svc := NewCheckoutService(guard, fs, NewDiscountLedger(fs), NewCachedTaxRate(fs, nil, 0), pub)
	return &checkoutFixture{store: fs, publisher: pub, svc: svc}
}

func TestCheckoutEndToEnd(t *testing.T) {
	f := newCheckoutFixture()

	result, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
		OrderID:       "order-1",
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SaleID)
	assert.Equal(t, "26.68", result.TotalPaid.StringFixed(2))
	assert.Empty(t, result.Failed())

	require.Len(t, f.store.sales, 1)
	sale := f.store.sales[0]
	assert.Equal(t, "order-1", sale.OrderID)
	assert.Equal(t, "shift-1", sale.ShiftID)
	assert.Equal(t, "Staff cashier-1", sale.CashierName)
	assert.Equal(t, "26.00", sale.Subtotal.StringFixed(2))
	assert.Equal(t, "3.68", sale.Tax.StringFixed(2))
	assert.Len(t, sale.Items, 2)

	assert.Equal(t, models.OrderStatusPaid, f.store.orders["order-1"].Status)
	assert.Equal(t, models.TableStateDirty, f.store.tables["table-4"])
	assert.Equal(t, 1, f.store.discounts["promo"].CurrentUses)

	changes := f.store.orderChanges(t)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OrderStatusDelivered, changes[0].PreviousStatus)
	assert.Equal(t, models.OrderStatusPaid, changes[0].Status)
	assert.Equal(t, "cashier-1", changes[0].ChangedBy)
	assert.Len(t, changes[0].Items, 2)
	require.Len(t, f.publisher.sales, 1)
	assert.Equal(t, result.SaleID, f.publisher.sales[0].SaleID)
}

func TestCheckoutRejectsUndeliveredOrder(t *testing.T) {
	for _, status := range []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusInPreparation,
		models.OrderStatusReady,
		models.OrderStatusPaid,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newCheckoutFixture()
			f.store.orders["order-1"].Status = status

			_, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
				OrderID:       "order-1",
				PaymentMethod: models.PaymentCard,
			})

			assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
			assert.Zero(t, f.store.writeCount())
			assert.Equal(t, status, f.store.orders["order-1"].Status)
			assert.Empty(t, f.publisher.sales)
			assert.Empty(t, f.store.orderChanges(t))
		})
	}
}

func TestCheckoutValidation(t *testing.T) {
	tests := []struct {
		name  string
		uid   string
		req   CheckoutRequest
		setup func(f *checkoutFixture)
		code  apperr.Code
	}{
		{
			name: "no identity",
			req:  CheckoutRequest{OrderID: "order-1", PaymentMethod: models.PaymentCash},
			code: apperr.Unauthenticated,
		},
		{
			name: "waiter cannot charge",
			uid:  "waiter-1",
			req:  CheckoutRequest{OrderID: "order-1", PaymentMethod: models.PaymentCash},
			code: apperr.PermissionDenied,
		},
		{
			name: "unknown payment method",
			uid:  "cashier-1",
			req:  CheckoutRequest{OrderID: "order-1", PaymentMethod: "bitcoin"},
			code: apperr.InvalidArgument,
		},
		{
			name: "missing order id",
			uid:  "cashier-1",
			req:  CheckoutRequest{PaymentMethod: models.PaymentCash},
			code: apperr.InvalidArgument,
		},
		{
			name: "unknown order",
			uid:  "cashier-1",
			req:  CheckoutRequest{OrderID: "nope", PaymentMethod: models.PaymentCash},
			code: apperr.NotFound,
		},
		{
			name: "no open shift",
			uid:  "cashier-1",
			req:  CheckoutRequest{OrderID: "order-1", PaymentMethod: models.PaymentCash},
			setup: func(f *checkoutFixture) {
				f.store.shifts["shift-1"].Status = models.ShiftStatusClosed
			},
			code: apperr.FailedPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.svc.Checkout(context.Background(), tt.uid, tt.req)

			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.Zero(t, f.store.saleCount())
		})
	}
}

func TestCheckoutConcurrentCallsRecordOneSale(t *testing.T) {
	f := newCheckoutFixture()

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		codes     []apperr.Code
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
				OrderID:       "order-1",
				PaymentMethod: models.PaymentCash,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			codes = append(codes, apperr.CodeOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, f.store.saleCount())
	assert.Len(t, f.store.orderChanges(t), 1)
	for _, code := range codes {
		assert.Equal(t, apperr.FailedPrecondition, code)
	}
}

func TestCheckoutCascadeFailuresAreNotFatal(t *testing.T) {
	f := newCheckoutFixture()
	f.store.releaseTableErr = errors.New("table service down")
	f.store.incrementErr = errors.New("counter unavailable")
	f.publisher.err = errors.New("broker unreachable")

	result, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
		OrderID:       "order-1",
		PaymentMethod: models.PaymentCard,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.saleCount())
	assert.Equal(t, models.OrderStatusPaid, f.store.orders["order-1"].Status)

	failed := map[CascadeStep]bool{}
	for _, c := range result.Failed() {
		failed[c.Step] = true
	}
	assert.Equal(t, map[CascadeStep]bool{
		CascadeDiscountUsage: true,
		CascadeTableRelease:  true,
		CascadeSaleEvent:     true,
	}, failed)
	// the order change-feed entry is written with the sale, not after it
	assert.Len(t, f.store.orderChanges(t), 1)
}

func TestCheckoutWithoutTaxRate(t *testing.T) {
	f := newCheckoutFixture()
	f.store.taxErr = errors.New("config missing")

	result, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
		OrderID:       "order-1",
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)

	assert.Equal(t, "23.00", result.TotalPaid.StringFixed(2))
}

func TestCheckoutOrderWithoutTableOrDiscount(t *testing.T) {
	f := newCheckoutFixture()
	f.store.orders["counter-1"] = &models.Order{
		ID:     "counter-1",
		Status: models.OrderStatusDelivered,
		Items:  models.LineItems{},
	}

	result, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
		OrderID:       "counter-1",
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)

	assert.True(t, result.TotalPaid.IsZero())
	for _, c := range result.Cascades {
		assert.NotEqual(t, CascadeTableRelease, c.Step)
		assert.NotEqual(t, CascadeDiscountUsage, c.Step)
	}
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	err  error
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token"
	return "token", true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func TestCheckoutLock(t *testing.T) {
	t.Run("held lock rejects", func(t *testing.T) {
		f := newCheckoutFixture()
		locker := &fakeLocker{held: map[string]string{"checkout:order-1": "other"}}
		f.svc.WithLocker(locker, time.Second)

		_, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
			OrderID:       "order-1",
			PaymentMethod: models.PaymentCash,
		})

		assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
		assert.Zero(t, f.store.saleCount())
	})

	t.Run("released after checkout", func(t *testing.T) {
		f := newCheckoutFixture()
		locker := &fakeLocker{held: map[string]string{}}
		f.svc.WithLocker(locker, time.Second)

		_, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
			OrderID:       "order-1",
			PaymentMethod: models.PaymentCash,
		})

		require.NoError(t, err)
		assert.Empty(t, locker.held)
	})

	t.Run("unavailable lock is tolerated", func(t *testing.T) {
		f := newCheckoutFixture()
		locker := &fakeLocker{held: map[string]string{}, err: errors.New("redis down")}
		f.svc.WithLocker(locker, time.Second)

		_, err := f.svc.Checkout(context.Background(), "cashier-1", CheckoutRequest{
			OrderID:       "order-1",
			PaymentMethod: models.PaymentCash,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, f.store.saleCount())
	})
}

func TestDirectSale(t *testing.T) {
	f := newCheckoutFixture()

	result, err := f.svc.DirectSale(context.Background(), "cashier-1", DirectSaleRequest{
		Items: models.LineItems{
			{ProductID: "p9", Name: "Water", UnitPrice: money("2.50"), Quantity: 4},
		},
		Discount:      &models.AppliedDiscount{DiscountID: "promo", Name: "Promo", Amount: money("1.00")},
		PaymentMethod: models.PaymentCard,
	})
	require.NoError(t, err)

	// 10.00 - 1.00 = 9.00, tax 1.44
	assert.Equal(t, "10.44", result.TotalPaid.StringFixed(2))
	require.Len(t, f.store.sales, 1)
	assert.Equal(t, models.DirectSaleOrderID, f.store.sales[0].OrderID)
	assert.Nil(t, f.store.sales[0].TableID)
	assert.Equal(t, 1, f.store.discounts["promo"].CurrentUses)
	assert.Empty(t, f.store.orderChanges(t))
}

func TestDirectSaleEmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	result, err := f.svc.DirectSale(context.Background(), "cashier-1", DirectSaleRequest{PaymentMethod: models.PaymentCash})
	require.NoError(t, err)

	assert.True(t, result.TotalPaid.IsZero())
	assert.Equal(t, 1, f.store.saleCount())
}

func TestDirectSaleValidation(t *testing.T) {
	tests := []struct {
		name string
		req  DirectSaleRequest
	}{
		{
			name: "zero quantity",
			req: DirectSaleRequest{PaymentMethod: models.PaymentCash, Items: models.LineItems{
				{ProductID: "p", UnitPrice: money("1.00"), Quantity: 0},
			}},
		},
		{
			name: "negative price",
			req: DirectSaleRequest{PaymentMethod: models.PaymentCash, Items: models.LineItems{
				{ProductID: "p", UnitPrice: money("-1.00"), Quantity: 1},
			}},
		},
		{
			name: "negative modifier",
			req: DirectSaleRequest{PaymentMethod: models.PaymentCash, Items: models.LineItems{
				{ProductID: "p", UnitPrice: money("1.00"), Quantity: 1, Modifiers: []models.AppliedModifier{{Price: money("-0.50")}}},
			}},
		},
		{
			name: "negative discount",
			req: DirectSaleRequest{
				PaymentMethod: models.PaymentCash,
				Discount:      &models.AppliedDiscount{DiscountID: "promo", Amount: money("-2.00")},
			},
		},
		{
			name: "bad payment method",
			req:  DirectSaleRequest{PaymentMethod: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture()

			_, err := f.svc.DirectSale(context.Background(), "cashier-1", tt.req)

			assert.Equal(t, apperr.InvalidArgument, apperr.CodeOf(err))
			assert.Zero(t, f.store.saleCount())
		})
	}
}
