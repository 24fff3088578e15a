package api

import (
	"time"

	"pos-service/internal/models"
	"pos-service/internal/service"

	"github.com/shopspring/decimal"
)

type openShiftRequest struct {
	OpeningFloat *float64 `json:"openingFloat"`
}

type closeShiftRequest struct {
	CountedCash *float64 `json:"countedCash"`
	Notes       *string  `json:"notes"`
}

type customerPayload struct {
	Name    string  `json:"name"`
	Email   *string `json:"email"`
	TaxInfo *string `json:"taxInfo"`
}

func (p *customerPayload) toModel() *models.CustomerDetails {
	if p == nil {
		return nil
	}
	return &models.CustomerDetails{Name: p.Name, Email: p.Email, TaxInfo: p.TaxInfo}
}

type checkoutRequest struct {
	OrderID         string           `json:"orderId"`
	PaymentMethod   string           `json:"paymentMethod"`
	CustomerDetails *customerPayload `json:"customerDetails"`
}

type modifierPayload struct {
	GroupID  string          `json:"groupId"`
	OptionID string          `json:"optionId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
}

type itemPayload struct {
	ProductID string            `json:"productId"`
	Name      string            `json:"name"`
	UnitPrice decimal.Decimal   `json:"unitPrice"`
	Quantity  int               `json:"quantity"`
	Note      string            `json:"note"`
	Modifiers []modifierPayload `json:"modifiers"`
}

type discountPayload struct {
	DiscountID string          `json:"discountId"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

func (p *discountPayload) toModel() *models.AppliedDiscount {
	if p == nil {
		return nil
	}
	return &models.AppliedDiscount{DiscountID: p.DiscountID, Name: p.Name, Amount: p.Amount}
}

type directSaleRequest struct {
	Items           []itemPayload    `json:"items"`
	Discount        *discountPayload `json:"discount"`
	PaymentMethod   string           `json:"paymentMethod"`
	CustomerDetails *customerPayload `json:"customerDetails"`
}

func toLineItems(items []itemPayload) models.LineItems {
	out := make(models.LineItems, 0, len(items))
	for _, it := range items {
		li := models.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Note:      it.Note,
		}
		for _, m := range it.Modifiers {
			li.Modifiers = append(li.Modifiers, models.AppliedModifier{
				GroupID:  m.GroupID,
				OptionID: m.OptionID,
				Name:     m.Name,
				Price:    m.Price,
			})
		}
		out = append(out, li)
	}
	return out
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type restockRequest struct {
	Ingredient string `json:"ingredient"`
	Quantity   int    `json:"quantity"`
}

type saleResponse struct {
	SaleID    string  `json:"saleId"`
	TotalPaid float64 `json:"totalPaid"`
}

func newSaleResponse(r *service.CheckoutResult) saleResponse {
	return saleResponse{SaleID: r.SaleID, TotalPaid: r.TotalPaid.InexactFloat64()}
}

type summaryView struct {
	TotalCash        float64 `json:"totalCash"`
	TotalCard        float64 `json:"totalCard"`
	TotalOverall     float64 `json:"totalOverall"`
	TransactionCount int     `json:"transactionCount"`
}

type shiftView struct {
	ID           string       `json:"id"`
	CashierID    string       `json:"cashierId"`
	Status       string       `json:"status"`
	OpeningFloat float64      `json:"openingFloat"`
	OpenedAt     time.Time    `json:"openedAt"`
	ClosedAt     *time.Time   `json:"closedAt"`
	Summary      *summaryView `json:"summary"`
}

func newShiftView(s *models.CashShift) shiftView {
	v := shiftView{
		ID:           s.ID,
		CashierID:    s.CashierID,
		Status:       string(s.Status),
		OpeningFloat: s.OpeningFloat.InexactFloat64(),
		OpenedAt:     s.OpenedAt,
		ClosedAt:     s.ClosedAt,
	}
	if s.Summary != nil {
		v.Summary = &summaryView{
			TotalCash:        s.Summary.TotalCash.InexactFloat64(),
			TotalCard:        s.Summary.TotalCard.InexactFloat64(),
			TotalOverall:     s.Summary.TotalOverall.InexactFloat64(),
			TransactionCount: s.Summary.TransactionCount,
		}
	}
	return v
}

type saleView struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	TableID       *string   `json:"tableId"`
	CashierName   string    `json:"cashierName"`
	PaymentMethod string    `json:"paymentMethod"`
	Subtotal      float64   `json:"subtotal"`
	Tax           float64   `json:"tax"`
	TotalPaid     float64   `json:"totalPaid"`
	PaidAt        time.Time `json:"paidAt"`
}

func newSaleView(s *models.SaleRecord) saleView {
	return saleView{
		ID:            s.ID,
		OrderID:       s.OrderID,
		TableID:       s.TableID,
		CashierName:   s.CashierName,
		PaymentMethod: string(s.PaymentMethod),
		Subtotal:      s.Subtotal.InexactFloat64(),
		Tax:           s.Tax.InexactFloat64(),
		TotalPaid:     s.TotalPaid.InexactFloat64(),
		PaidAt:        s.PaidAt,
	}
}

type ingredientView struct {
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	CurrentStock int    `json:"currentStock"`
	MinimumStock int    `json:"minimumStock"`
}

type inventoryView struct {
	ProductID   string           `json:"productId"`
	AlertActive bool             `json:"alertActive"`
	Ingredients []ingredientView `json:"ingredients"`
}

func newInventoryView(rec *models.InventoryRecord) inventoryView {
	v := inventoryView{ProductID: rec.ProductID, AlertActive: rec.AlertActive}
	for _, ing := range rec.Ingredients {
		v.Ingredients = append(v.Ingredients, ingredientView(ing))
	}
	return v
}
