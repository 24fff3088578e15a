package service

import (
	"context"
	"errors"
	"math"
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

// ShiftStore persists cash shifts and reads their sales ledger
type ShiftStore interface {
	OpenShift(ctx context.Context, shift *models.CashShift) error
	GetShift(ctx context.Context, id string) (*models.CashShift, error)
	GetOpenShiftByCashier(ctx context.Context, cashierID string) (*models.CashShift, error)
	CloseShift(ctx context.Context, shiftID string, fn store.CloseShiftFunc) error
	GetSalesByShift(ctx context.Context, shiftID string) ([]models.SaleRecord, error)
}

// ShiftEventPublisher announces closed shifts
type ShiftEventPublisher interface {
	PublishShiftClosed(ctx context.Context, event *models.ShiftClosedEvent) error
}

// ShiftService is the cash session manager
type ShiftService struct {
	guard     *RoleGuard
	store     ShiftStore
	publisher ShiftEventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewShiftService creates a new shift service. publisher may be nil.
func NewShiftService(guard *RoleGuard, store ShiftStore, publisher ShiftEventPublisher) *ShiftService {
	return &ShiftService{
		guard:     guard,
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CloseShiftRequest carries the optional cash count taken at close
type CloseShiftRequest struct {
	ShiftID     string
	CountedCash *float64
	Notes       *string
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// OpenShift starts a shift for the calling cashier and returns its id
func (s *ShiftService) OpenShift(ctx context.Context, uid string, openingFloat float64) (string, error) {
	ctx, span := util.StartSpan(ctx, "ShiftService.OpenShift")
	defer span.End()

	user, err := s.guard.Authorize(ctx, uid, models.RoleCashier, models.RoleAdmin)
	if err != nil {
		return "", err
	}

	if !validAmount(openingFloat) {
		return "", apperr.New(apperr.InvalidArgument, "opening float must be a finite amount of at least 0")
	}

	shift := &models.CashShift{
		ID:           uuid.New().String(),
		CashierID:    user.ID,
		Status:       models.ShiftStatusOpen,
		OpeningFloat: decimal.NewFromFloat(openingFloat).Round(2),
		OpenedAt:     s.now(),
	}

	if err := s.store.OpenShift(ctx, shift); err != nil {
		if errors.Is(err, store.ErrShiftAlreadyOpen) {
			return "", apperr.New(apperr.AlreadyExists, "shift already open")
		}
		util.RecordError(span, err)
		return "", apperr.Wrap(apperr.Internal, "failed to open shift", err)
	}

	util.ShiftsOpenedTotal.Inc()
	span.SetAttributes(attribute.String("shift_id", shift.ID))
	s.logger.Info("Shift opened",
		zap.String("shift_id", shift.ID),
		zap.String("cashier_id", user.ID),
		zap.String("opening_float", shift.OpeningFloat.StringFixed(2)))

	return shift.ID, nil
}

// CloseShift reconciles a shift from its sales ledger and closes it
func (s *ShiftService) CloseShift(ctx context.Context, uid string, req CloseShiftRequest) (*models.ShiftClosing, error) {
	ctx, span := util.StartSpan(ctx, "ShiftService.CloseShift", attribute.String("shift_id", req.ShiftID))
	defer span.End()

	user, err := s.guard.Authorize(ctx, uid, allRoles...)
	if err != nil {
		return nil, err
	}

	if req.ShiftID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "shift id is required")
	}
	if req.CountedCash != nil && !validAmount(*req.CountedCash) {
		return nil, apperr.New(apperr.InvalidArgument, "counted cash must be a finite amount of at least 0")
	}

	var (
		closing   *models.ShiftClosing
		cashierID string
	)
	err = s.store.CloseShift(ctx, req.ShiftID, func(shift *models.CashShift, sales []models.SaleRecord) (*models.ShiftClosing, error) {
		if shift.Status == models.ShiftStatusClosed {
			return nil, apperr.New(apperr.FailedPrecondition, "shift already closed")
		}
		if shift.CashierID != user.ID && user.Role != models.RoleAdmin {
			return nil, apperr.New(apperr.PermissionDenied, "only the shift's cashier or an admin may close it")
		}

		closing = buildClosing(shift, sales, req, s.now())
		cashierID = shift.CashierID
		return closing, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "shift not found")
		}
		if _, coded := asCoded(err); coded {
			return nil, err
		}
		util.RecordError(span, err)
		return nil, apperr.Wrap(apperr.Internal, "failed to close shift", err)
	}

	util.ShiftsClosedTotal.Inc()
	s.logger.Info("Shift closed",
		zap.String("shift_id", req.ShiftID),
		zap.String("closed_by", user.ID),
		zap.Int("transactions", closing.Summary.TransactionCount),
		zap.String("total_overall", closing.Summary.TotalOverall.StringFixed(2)))

	if s.publisher != nil {
		event := &models.ShiftClosedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeShiftClosed,
				Timestamp: closing.ClosedAt,
			},
			ShiftID:   req.ShiftID,
			CashierID: cashierID,
			Summary:   closing.Summary,
		}
		if err := s.publisher.PublishShiftClosed(ctx, event); err != nil {
			s.logger.Error("Failed to publish ShiftClosed event", zap.String("shift_id", req.ShiftID), zap.Error(err))
		}
	}

	return closing, nil
}

// CurrentShift returns the caller's open shift
func (s *ShiftService) CurrentShift(ctx context.Context, uid string) (*models.CashShift, error) {
	user, err := s.guard.Authorize(ctx, uid, models.RoleCashier, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	shift, err := s.store.GetOpenShiftByCashier(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load shift", err)
	}
	if shift == nil {
		return nil, apperr.New(apperr.NotFound, "no open shift")
	}
	return shift, nil
}

// ShiftSales returns the sales ledger of a shift. Cashiers only see their own shifts.
func (s *ShiftService) ShiftSales(ctx context.Context, uid, shiftID string) ([]models.SaleRecord, error) {
	user, err := s.guard.Authorize(ctx, uid, models.RoleCashier, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	shift, err := s.store.GetShift(ctx, shiftID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "shift not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load shift", err)
	}
	if shift.CashierID != user.ID && user.Role != models.RoleAdmin {
		return nil, apperr.New(apperr.PermissionDenied, "not your shift")
	}

	sales, err := s.store.GetSalesByShift(ctx, shiftID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load sales", err)
	}
	return sales, nil
}

// summarize totals a sales ledger by payment method. Each aggregate is rounded to the cent.
func summarize(sales []models.SaleRecord) models.ShiftSummary {
	cash, card, overall := decimal.Zero, decimal.Zero, decimal.Zero
	for _, sale := range sales {
		switch sale.PaymentMethod {
		case models.PaymentCash:
			cash = cash.Add(sale.TotalPaid)
		case models.PaymentCard:
			card = card.Add(sale.TotalPaid)
		}
		overall = overall.Add(sale.TotalPaid)
	}

	return models.ShiftSummary{
		TotalCash:        cash.Round(2),
		TotalCard:        card.Round(2),
		TotalOverall:     overall.Round(2),
		TransactionCount: len(sales),
	}
}

func buildClosing(shift *models.CashShift, sales []models.SaleRecord, req CloseShiftRequest, at time.Time) *models.ShiftClosing {
	summary := summarize(sales)
	expected := shift.OpeningFloat.Add(summary.TotalCash).Round(2)

	closing := &models.ShiftClosing{
		ClosedAt:     at,
		Summary:      summary,
		ExpectedCash: &expected,
		Notes:        req.Notes,
	}

	if req.CountedCash != nil {
		counted := decimal.NewFromFloat(*req.CountedCash).Round(2)
		diff := counted.Sub(expected).Round(2)
		closing.CountedCash = &counted
		closing.CashDifference = &diff
	}

	return closing
}

func asCoded(err error) (*apperr.Error, bool) {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
