package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for store.Store with the same conditional-write semantics
type fakeStore struct {
	mu sync.Mutex

	staff     map[string]*models.StaffUser
	orders    map[string]*models.Order
	shifts    map[string]*models.CashShift
	sales     []models.SaleRecord
	discounts map[string]*models.Discount
	inventory map[string]*models.InventoryRecord
	available map[string]bool
	tables    map[string]string
	markers   map[string]bool
	outbox    []models.OutboxMessage

	taxRate decimal.Decimal
	taxErr  error

	releaseTableErr error
	incrementErr    error
	batchErr        error
	emitErr         error
	processedErr    error

	batchCalls int
	writes     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		staff:     make(map[string]*models.StaffUser),
		orders:    make(map[string]*models.Order),
		shifts:    make(map[string]*models.CashShift),
		discounts: make(map[string]*models.Discount),
		inventory: make(map[string]*models.InventoryRecord),
		available: make(map[string]bool),
		tables:    make(map[string]string),
		markers:   make(map[string]bool),
	}
}

func (f *fakeStore) addStaff(id string, role models.Role, active bool) {
	f.staff[id] = &models.StaffUser{ID: id, Name: "Staff " + id, Role: role, Active: active}
}

func (f *fakeStore) addOpenShift(id, cashierID string) {
	f.shifts[id] = &models.CashShift{
		ID:           id,
		CashierID:    cashierID,
		Status:       models.ShiftStatusOpen,
		OpeningFloat: decimal.NewFromInt(100),
		OpenedAt:     time.Now().UTC(),
	}
}

func (f *fakeStore) saleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sales)
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeStore) GetStaffUser(ctx context.Context, id string) (*models.StaffUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.staff[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) TransitionOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus, emit store.OrderChangeFunc) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return nil, store.ErrStatusConflict
	}
	cp := *o
	cp.Status = to

	if emit != nil {
		msg, err := emit(&cp)
		if err == nil {
			err = f.emitErr
		}
		if err != nil {
			return nil, err
		}
		f.outbox = append(f.outbox, *msg)
	}

	o.Status = to
	f.writes++
	return &cp, nil
}

// orderChanges decodes the order change-feed entries waiting in the outbox
func (f *fakeStore) orderChanges(t *testing.T) []*models.OrderStatusChangedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []*models.OrderStatusChangedEvent
	for _, msg := range f.outbox {
		require.Equal(t, models.EventTypeOrderStatusChanged, msg.EventType)
		var event models.OrderStatusChangedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, event.OrderID, msg.AggregateID)
		events = append(events, &event)
	}
	return events
}

func (f *fakeStore) ReleaseTable(ctx context.Context, tableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseTableErr != nil {
		return f.releaseTableErr
	}
	if _, ok := f.tables[tableID]; !ok {
		return fmt.Errorf("table %s: %w", tableID, store.ErrNotFound)
	}
	f.tables[tableID] = models.TableStateDirty
	f.writes++
	return nil
}

func (f *fakeStore) GetTaxRatePercent(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taxRate, f.taxErr
}

func (f *fakeStore) IncrementDiscountUsage(ctx context.Context, discountID string) (*models.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return nil, f.incrementErr
	}
	d, ok := f.discounts[discountID]
	if !ok {
		return nil, fmt.Errorf("discount %s: %w", discountID, store.ErrNotFound)
	}
	d.CurrentUses++
	f.writes++
	cp := *d
	return &cp, nil
}

func (f *fakeStore) OpenShift(ctx context.Context, shift *models.CashShift) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.shifts {
		if s.CashierID == shift.CashierID && s.Status == models.ShiftStatusOpen {
			return store.ErrShiftAlreadyOpen
		}
	}
	cp := *shift
	f.shifts[shift.ID] = &cp
	f.writes++
	return nil
}

func (f *fakeStore) GetShift(ctx context.Context, id string) (*models.CashShift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shifts[id]
	if !ok {
		return nil, fmt.Errorf("shift %s: %w", id, store.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetOpenShiftByCashier(ctx context.Context, cashierID string) (*models.CashShift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.shifts {
		if s.CashierID == cashierID && s.Status == models.ShiftStatusOpen {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CloseShift(ctx context.Context, shiftID string, fn store.CloseShiftFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shifts[shiftID]
	if !ok {
		return fmt.Errorf("shift %s: %w", shiftID, store.ErrNotFound)
	}

	cp := *s
	closing, err := fn(&cp, f.salesOf(shiftID))
	if err != nil {
		return err
	}

	s.Status = models.ShiftStatusClosed
	s.ClosedAt = &closing.ClosedAt
	summary := closing.Summary
	s.Summary = &summary
	s.ExpectedCash = closing.ExpectedCash
	s.CountedCash = closing.CountedCash
	s.CashDifference = closing.CashDifference
	s.CloseNotes = closing.Notes
	f.writes++
	return nil
}

func (f *fakeStore) GetSalesByShift(ctx context.Context, shiftID string) ([]models.SaleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.salesOf(shiftID), nil
}

func (f *fakeStore) salesOf(shiftID string) []models.SaleRecord {
	var out []models.SaleRecord
	for _, sale := range f.sales {
		if sale.ShiftID == shiftID {
			out = append(out, sale)
		}
	}
	return out
}

func (f *fakeStore) RecordSale(ctx context.Context, sale *models.SaleRecord, outbox ...*models.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.shifts[sale.ShiftID]
	if !ok || s.Status != models.ShiftStatusOpen {
		return store.ErrShiftNotOpen
	}

	if sale.OrderID != models.DirectSaleOrderID {
		o, ok := f.orders[sale.OrderID]
		if !ok || o.Status != models.OrderStatusDelivered {
			return store.ErrOrderNotPayable
		}
		o.Status = models.OrderStatusPaid
	}

	f.sales = append(f.sales, *sale)
	for _, msg := range outbox {
		f.outbox = append(f.outbox, *msg)
	}
	f.writes++
	return nil
}

func (f *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processedErr != nil {
		return false, f.processedErr
	}
	return f.markers[eventID], nil
}

func (f *fakeStore) GetInventoryByProduct(ctx context.Context, productID string) (*models.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.inventory[productID]
	if !ok {
		return nil, fmt.Errorf("inventory for product %s: %w", productID, store.ErrNotFound)
	}
	cp := *rec
	cp.Ingredients = append(models.Ingredients(nil), rec.Ingredients...)
	return &cp, nil
}

func (f *fakeStore) ApplyInventoryBatch(ctx context.Context, marker string, productIDs []string, mutate store.InventoryMutator) (*store.InventoryBatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++

	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.markers[marker] {
		return nil, store.ErrAlreadyProcessed
	}

	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	// stage every change and only publish them once the whole batch succeeded
	staged := make(map[string]*models.InventoryRecord)
	result := &store.InventoryBatchResult{}
	for _, id := range ids {
		rec, ok := f.inventory[id]
		if !ok {
			continue
		}
		cp := *rec
		cp.Ingredients = append(models.Ingredients(nil), rec.Ingredients...)
		if mutate(&cp) {
			result.Suspended = append(result.Suspended, id)
		}
		staged[id] = &cp
		result.Updated = append(result.Updated, id)
	}

	for id, rec := range staged {
		f.inventory[id] = rec
	}
	for _, id := range result.Suspended {
		f.available[id] = false
	}
	f.markers[marker] = true
	f.writes++
	return result, nil
}

func (f *fakeStore) UpdateInventoryLocked(ctx context.Context, productID, actorID string, fn func(rec *models.InventoryRecord) (*bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.inventory[productID]
	if !ok {
		return fmt.Errorf("inventory for product %s: %w", productID, store.ErrNotFound)
	}
	cp := *rec
	cp.Ingredients = append(models.Ingredients(nil), rec.Ingredients...)

	available, err := fn(&cp)
	if err != nil {
		return err
	}

	cp.UpdatedByID = actorID
	f.inventory[productID] = &cp
	if available != nil {
		f.available[productID] = *available
	}
	f.writes++
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	err    error
	sales  []*models.SaleRecordedEvent
	shifts []*models.ShiftClosedEvent
	alerts []*models.StockAlertEvent
}

func (p *fakePublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sales = append(p.sales, event)
	return nil
}

func (p *fakePublisher) PublishShiftClosed(ctx context.Context, event *models.ShiftClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.shifts = append(p.shifts, event)
	return nil
}

func (p *fakePublisher) PublishStockAlert(ctx context.Context, event *models.StockAlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, event)
	return nil
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
