package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Role is the job a staff member holds
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
	RoleKitchen Role = "kitchen"
	RoleWaiter  Role = "waiter"
)

// StaffUser is a member of staff. Owned by staff administration, read-only here.
type StaffUser struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Role   Role   `db:"role" json:"role"`
	Active bool   `db:"active" json:"active"`
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusInPreparation OrderStatus = "in_preparation"
	OrderStatusReady         OrderStatus = "ready"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusPaid          OrderStatus = "paid"
)

// DirectSaleOrderID replaces the order id on sales recorded without an order
const DirectSaleOrderID = "venta_directa"

// AppliedModifier is a modifier option snapshot taken when the order was created
type AppliedModifier struct {
	GroupID  string          `json:"group_id"`
	OptionID string          `json:"option_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price_snapshot"`
}

// LineItem is one product entry on an order. Prices and quantity never change after creation.
type LineItem struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	UnitPrice decimal.Decimal   `json:"unit_price_snapshot"`
	Quantity  int               `json:"quantity"`
	Note      string            `json:"note,omitempty"`
	Modifiers []AppliedModifier `json:"modifiers,omitempty"`
}

// LineItems is stored as a JSONB array
type LineItems []LineItem

// Value implements driver.Valuer
func (li LineItems) Value() (driver.Value, error) {
	if li == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(li)
}

// Scan implements sql.Scanner
func (li *LineItems) Scan(src interface{}) error {
	return scanJSON(src, li)
}

// AppliedDiscount is the discount snapshot recorded on an order
type AppliedDiscount struct {
	DiscountID string          `json:"discount_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

// Value implements driver.Valuer
func (d AppliedDiscount) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *AppliedDiscount) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// Order is a table or counter order
type Order struct {
	ID        string           `db:"id" json:"id"`
	TableID   *string          `db:"table_id" json:"table_id"`
	Items     LineItems        `db:"items" json:"items"`
	Discount  *AppliedDiscount `db:"discount" json:"discount"`
	Status    OrderStatus      `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// Table states
const (
	TableStateFree     = "free"
	TableStateOccupied = "occupied"
	TableStateDirty    = "needs_cleaning"
)

// ShiftStatus is the state of a cash shift
type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)

// ShiftSummary is the reconciliation written when a shift closes
type ShiftSummary struct {
	TotalCash        decimal.Decimal `json:"total_cash"`
	TotalCard        decimal.Decimal `json:"total_card"`
	TotalOverall     decimal.Decimal `json:"total_overall"`
	TransactionCount int             `json:"transaction_count"`
}

// Value implements driver.Valuer
func (s ShiftSummary) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *ShiftSummary) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// CashShift is a cashier's working session
type CashShift struct {
	ID             string           `db:"id" json:"id"`
	CashierID      string           `db:"cashier_id" json:"cashier_id"`
	Status         ShiftStatus      `db:"status" json:"status"`
	OpeningFloat   decimal.Decimal  `db:"opening_float" json:"opening_float"`
	OpenedAt       time.Time        `db:"opened_at" json:"opened_at"`
	ClosedAt       *time.Time       `db:"closed_at" json:"closed_at"`
	Summary        *ShiftSummary    `db:"summary" json:"summary"`
	ExpectedCash   *decimal.Decimal `db:"expected_cash" json:"expected_cash"`
	CountedCash    *decimal.Decimal `db:"counted_cash" json:"counted_cash"`
	CashDifference *decimal.Decimal `db:"cash_difference" json:"cash_difference"`
	CloseNotes     *string          `db:"close_notes" json:"close_notes"`
}

// ShiftClosing holds everything written onto a shift when it closes
type ShiftClosing struct {
	ClosedAt       time.Time
	Summary        ShiftSummary
	ExpectedCash   *decimal.Decimal
	CountedCash    *decimal.Decimal
	CashDifference *decimal.Decimal
	Notes          *string
}

// PaymentMethod is how a sale was paid
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether the method is one the engine accepts
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// CustomerDetails are optional billing details for a sale
type CustomerDetails struct {
	Name    string  `json:"name"`
	Email   *string `json:"email"`
	TaxInfo *string `json:"tax_info"`
}

// Value implements driver.Valuer
func (c CustomerDetails) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *CustomerDetails) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// SaleRecord is the immutable ledger entry created at payment time
type SaleRecord struct {
	ID            string           `db:"id" json:"id"`
	OrderID       string           `db:"order_id" json:"order_id"`
	TableID       *string          `db:"table_id" json:"table_id"`
	ShiftID       string           `db:"shift_id" json:"shift_id"`
	CashierID     string           `db:"cashier_id" json:"cashier_id"`
	CashierName   string           `db:"cashier_name" json:"cashier_name"`
	PaymentMethod PaymentMethod    `db:"payment_method" json:"payment_method"`
	Items         LineItems        `db:"items" json:"items"`
	Subtotal      decimal.Decimal  `db:"subtotal" json:"subtotal"`
	Discount      *AppliedDiscount `db:"discount" json:"discount"`
	Tax           decimal.Decimal  `db:"tax" json:"tax"`
	TotalPaid     decimal.Decimal  `db:"total_paid" json:"total_paid"`
	Customer      *CustomerDetails `db:"customer" json:"customer"`
	PaidAt        time.Time        `db:"paid_at" json:"paid_at"`
}

// DiscountType distinguishes percentage and fixed discounts
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// DiscountConditions restrict when a discount may be applied
type DiscountConditions struct {
	Weekdays       []int           `json:"weekdays"`
	StartTime      string          `json:"start_time"`
	EndTime        string          `json:"end_time"`
	CategoryID     *string         `json:"category_id"`
	ProductID      *string         `json:"product_id"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	Roles          []Role          `json:"roles"`
}

// Value implements driver.Valuer
func (c DiscountConditions) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *DiscountConditions) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Discount is a coupon or promotion. CurrentUses only moves through the checkout path.
type Discount struct {
	ID          string             `db:"id" json:"id"`
	Name        string             `db:"name" json:"name"`
	Type        DiscountType       `db:"type" json:"type"`
	Value       decimal.Decimal    `db:"value" json:"value"`
	Conditions  DiscountConditions `db:"conditions" json:"conditions"`
	CouponCode  *string            `db:"coupon_code" json:"coupon_code"`
	MaxUses     *int               `db:"max_uses" json:"max_uses"`
	CurrentUses int                `db:"current_uses" json:"current_uses"`
	Active      bool               `db:"active" json:"active"`
	ValidFrom   time.Time          `db:"valid_from" json:"valid_from"`
	ValidUntil  time.Time          `db:"valid_until" json:"valid_until"`
}

// Ingredient is one tracked supply of a product
type Ingredient struct {
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	CurrentStock int    `json:"current_stock"`
	MinimumStock int    `json:"minimum_stock"`
}

// Ingredients is stored as a JSONB array
type Ingredients []Ingredient

// Value implements driver.Valuer
func (in Ingredients) Value() (driver.Value, error) {
	if in == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(in)
}

// Scan implements sql.Scanner
func (in *Ingredients) Scan(src interface{}) error {
	return scanJSON(src, in)
}

// BelowMinimum reports whether any ingredient is under its threshold
func (in Ingredients) BelowMinimum() bool {
	for _, ing := range in {
		if ing.CurrentStock < ing.MinimumStock {
			return true
		}
	}
	return false
}

// InventoryRecord tracks the ingredients of one sellable product
type InventoryRecord struct {
	ID          string      `db:"id" json:"id"`
	ProductID   string      `db:"product_id" json:"product_id"`
	Ingredients Ingredients `db:"ingredients" json:"ingredients"`
	AlertActive bool        `db:"alert_active" json:"alert_active"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
	UpdatedByID string      `db:"updated_by_id" json:"updated_by_id"`
}

// Product is a sellable menu item
type Product struct {
	ID         string          `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	CategoryID string          `db:"category_id" json:"category_id"`
	Available  bool            `db:"available" json:"available"`
	ImageURL   string          `db:"image_url" json:"image_url"`
}

// ProcessedEvent marks an event (or per-order marker) as handled
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

func scanJSON(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	return json.Unmarshal(data, dest)
}
