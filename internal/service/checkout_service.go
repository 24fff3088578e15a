package service

import (
	"context"
	"errors"
	"time"

	"pos-service/internal/apperr"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutStore is the storage the checkout engine reads and writes
type CheckoutStore interface {
	GetOpenShiftByCashier(ctx context.Context, cashierID string) (*models.CashShift, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	RecordSale(ctx context.Context, sale *models.SaleRecord, outbox ...*models.OutboxMessage) error
	ReleaseTable(ctx context.Context, tableID string) error
}

// SaleEventPublisher announces recorded sales
type SaleEventPublisher interface {
	PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error
}

// Locker is a short-lived distributed lock
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// CascadeStep names a side effect attempted after a sale is recorded
type CascadeStep string

const (
	CascadeDiscountUsage CascadeStep = "discount_usage"
	CascadeTableRelease  CascadeStep = "table_release"
	CascadeSaleEvent     CascadeStep = "sale_event"
)

// CascadeOutcome is the result of one side effect. Err is nil when it succeeded.
type CascadeOutcome struct {
	Step CascadeStep
	Err  error
}

// CheckoutResult is a recorded sale plus the outcome of every side effect attempted after it.
// A failed cascade never turns a recorded sale into a failed checkout.
type CheckoutResult struct {
	SaleID    string
	TotalPaid decimal.Decimal
	Totals    Totals
	Cascades  []CascadeOutcome
}

// Failed returns the cascades that did not succeed
func (r *CheckoutResult) Failed() []CascadeOutcome {
	var failed []CascadeOutcome
	for _, c := range r.Cascades {
		if c.Err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}

// CheckoutRequest is a payment for a delivered order
type CheckoutRequest struct {
	OrderID       string
	PaymentMethod models.PaymentMethod
	Customer      *models.CustomerDetails
}

// DirectSaleRequest is a payment for an ad-hoc cart with no order behind it
type DirectSaleRequest struct {
	Items         models.LineItems
	Discount      *models.AppliedDiscount
	PaymentMethod models.PaymentMethod
	Customer      *models.CustomerDetails
}

// CheckoutService is the order checkout engine
type CheckoutService struct {
	guard     *RoleGuard
	store     CheckoutStore
	ledger    *DiscountLedger
	taxRates  TaxRateSource
	publisher SaleEventPublisher
	locker    Locker
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckoutService creates a new checkout service. ledger, taxRates and publisher may be nil.
func NewCheckoutService(
	guard *RoleGuard,
	store CheckoutStore,
	ledger *DiscountLedger,
	taxRates TaxRateSource,
	publisher SaleEventPublisher,
) *CheckoutService {
	return &CheckoutService{
		guard:     guard,
		store:     store,
		ledger:    ledger,
		taxRates:  taxRates,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithLocker serializes checkouts of the same order through locker before they reach the
// database. The conditional status write stays authoritative.
func (s *CheckoutService) WithLocker(locker Locker, ttl time.Duration) *CheckoutService {
	s.locker = locker
	s.lockTTL = ttl
	return s
}

// Checkout charges a delivered order. The total is recomputed from the order's snapshots.
func (s *CheckoutService) Checkout(ctx context.Context, uid string, req CheckoutRequest) (result *CheckoutResult, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout", attribute.String("order_id", req.OrderID))
	defer span.End()
	defer s.observe("order", time.Now(), &err)

	user, err := s.guard.Authorize(ctx, uid, models.RoleCashier, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if req.OrderID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "order id is required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, apperr.New(apperr.InvalidArgument, "unsupported payment method "+string(req.PaymentMethod))
	}

	shift, err := s.openShift(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, err := s.lock(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "order not found")
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Wrap(apperr.Internal, "failed to load order", err)
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, apperr.New(apperr.FailedPrecondition, "order is "+string(order.Status)+", only delivered orders can be paid")
	}

	totals := computeTotals(order.Items, order.Discount, s.taxRate(ctx))

	sale := &models.SaleRecord{
		ID:            uuid.New().String(),
		OrderID:       order.ID,
		TableID:       order.TableID,
		ShiftID:       shift.ID,
		CashierID:     user.ID,
		CashierName:   user.Name,
		PaymentMethod: req.PaymentMethod,
		Items:         order.Items,
		Subtotal:      totals.Subtotal,
		Discount:      order.Discount,
		Tax:           totals.Tax,
		TotalPaid:     totals.Total,
		Customer:      req.Customer,
		PaidAt:        s.now(),
	}

	paid := *order
	paid.Status = models.OrderStatusPaid
	change, err := orderChangeMessage(&paid, models.OrderStatusDelivered, user.ID, sale.PaidAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to build order change", err)
	}

	if err := s.recordSale(ctx, sale, change); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	result = &CheckoutResult{SaleID: sale.ID, TotalPaid: sale.TotalPaid, Totals: totals}

	s.recordDiscountUsage(ctx, result, order.Discount)
	if order.TableID != nil {
		result.add(CascadeTableRelease, s.store.ReleaseTable(ctx, *order.TableID))
	}
	s.publishSale(ctx, result, sale)

	s.logResult(sale, result)
	return result, nil
}

// DirectSale charges an ad-hoc cart. It follows the same pricing and persistence rules as
// Checkout, with the order id replaced by a sentinel.
func (s *CheckoutService) DirectSale(ctx context.Context, uid string, req DirectSaleRequest) (result *CheckoutResult, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.DirectSale")
	defer span.End()
	defer s.observe("direct", time.Now(), &err)

	user, err := s.guard.Authorize(ctx, uid, models.RoleCashier, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if !req.PaymentMethod.Valid() {
		return nil, apperr.New(apperr.InvalidArgument, "unsupported payment method "+string(req.PaymentMethod))
	}
	if err := validateCart(req.Items, req.Discount); err != nil {
		return nil, err
	}

	shift, err := s.openShift(ctx, user)
	if err != nil {
		return nil, err
	}

	items := req.Items
	if items == nil {
		items = models.LineItems{}
	}
	totals := computeTotals(items, req.Discount, s.taxRate(ctx))

	sale := &models.SaleRecord{
		ID:            uuid.New().String(),
		OrderID:       models.DirectSaleOrderID,
		ShiftID:       shift.ID,
		CashierID:     user.ID,
		CashierName:   user.Name,
		PaymentMethod: req.PaymentMethod,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Discount:      req.Discount,
		Tax:           totals.Tax,
		TotalPaid:     totals.Total,
		Customer:      req.Customer,
		PaidAt:        s.now(),
	}

	if err := s.recordSale(ctx, sale); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	result = &CheckoutResult{SaleID: sale.ID, TotalPaid: sale.TotalPaid, Totals: totals}
	s.recordDiscountUsage(ctx, result, req.Discount)
	s.publishSale(ctx, result, sale)

	s.logResult(sale, result)
	return result, nil
}

func validateCart(items models.LineItems, discount *models.AppliedDiscount) error {
	for _, item := range items {
		if item.Quantity < 1 {
			return apperr.New(apperr.InvalidArgument, "item quantity must be at least 1")
		}
		if item.UnitPrice.IsNegative() {
			return apperr.New(apperr.InvalidArgument, "item price must not be negative")
		}
		for _, m := range item.Modifiers {
			if m.Price.IsNegative() {
				return apperr.New(apperr.InvalidArgument, "modifier price must not be negative")
			}
		}
	}
	if discount != nil && discount.Amount.IsNegative() {
		return apperr.New(apperr.InvalidArgument, "discount amount must not be negative")
	}
	return nil
}

func (s *CheckoutService) openShift(ctx context.Context, user *models.StaffUser) (*models.CashShift, error) {
	shift, err := s.store.GetOpenShiftByCashier(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load shift", err)
	}
	if shift == nil {
		return nil, apperr.New(apperr.FailedPrecondition, "no open shift")
	}
	return shift, nil
}

// lock takes the per-order checkout lock. An unreachable lock service is tolerated.
func (s *CheckoutService) lock(ctx context.Context, orderID string) (func(), error) {
	key := "checkout:" + orderID
	token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("Checkout lock unavailable, relying on conditional write",
			zap.String("order_id", orderID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, apperr.New(apperr.FailedPrecondition, "checkout already in progress for this order")
	}

	return func() {
		if err := s.locker.ReleaseLock(ctx, key, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.String("order_id", orderID), zap.Error(err))
		}
	}, nil
}

// taxRate never fails; an unavailable rate is 0
func (s *CheckoutService) taxRate(ctx context.Context) decimal.Decimal {
	if s.taxRates == nil {
		return decimal.Zero
	}
	rate, err := s.taxRates.TaxRatePercent(ctx)
	if err != nil {
		s.logger.Warn("Tax rate unavailable, charging without tax", zap.Error(err))
		return decimal.Zero
	}
	return rate
}

func (s *CheckoutService) recordSale(ctx context.Context, sale *models.SaleRecord, outbox ...*models.OutboxMessage) error {
	err := s.store.RecordSale(ctx, sale, outbox...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrShiftNotOpen):
		return apperr.New(apperr.FailedPrecondition, "no open shift")
	case errors.Is(err, store.ErrOrderNotPayable):
		return apperr.New(apperr.FailedPrecondition, "order is no longer payable")
	default:
		return apperr.Wrap(apperr.Internal, "failed to record sale", err)
	}
}

func (s *CheckoutService) recordDiscountUsage(ctx context.Context, result *CheckoutResult, discount *models.AppliedDiscount) {
	if s.ledger == nil || discount == nil || discount.DiscountID == "" {
		return
	}
	result.add(CascadeDiscountUsage, s.ledger.RecordUsage(ctx, discount.DiscountID))
}

func (s *CheckoutService) publishSale(ctx context.Context, result *CheckoutResult, sale *models.SaleRecord) {
	if s.publisher == nil {
		return
	}
	result.add(CascadeSaleEvent, s.publisher.PublishSaleRecorded(ctx, &models.SaleRecordedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeSaleRecorded, sale.PaidAt),
		SaleID:        sale.ID,
		OrderID:       sale.OrderID,
		ShiftID:       sale.ShiftID,
		CashierID:     sale.CashierID,
		PaymentMethod: sale.PaymentMethod,
		TotalPaid:     sale.TotalPaid,
	}))
}

func (s *CheckoutService) logResult(sale *models.SaleRecord, result *CheckoutResult) {
	amount, _ := sale.TotalPaid.Float64()
	util.SaleAmount.WithLabelValues(string(sale.PaymentMethod)).Observe(amount)

	for _, c := range result.Failed() {
		util.CascadeFailuresTotal.WithLabelValues(string(c.Step)).Inc()
		s.logger.Error("Checkout side effect failed",
			zap.String("sale_id", sale.ID),
			zap.String("order_id", sale.OrderID),
			zap.String("step", string(c.Step)),
			zap.Error(c.Err))
	}

	s.logger.Info("Sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("order_id", sale.OrderID),
		zap.String("shift_id", sale.ShiftID),
		zap.String("total_paid", sale.TotalPaid.StringFixed(2)))
}

func (s *CheckoutService) observe(kind string, start time.Time, err *error) {
	result := "ok"
	if *err != nil {
		result = string(apperr.CodeOf(*err))
	}
	util.CheckoutsTotal.WithLabelValues(kind, result).Inc()
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
}

func (r *CheckoutResult) add(step CascadeStep, err error) {
	r.Cascades = append(r.Cascades, CascadeOutcome{Step: step, Err: err})
}

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}
