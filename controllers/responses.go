package controllers

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

func money(d decimal.Decimal) string {
	return utils.FormatMoney(d)
}

type lineResponse struct {
	FoodItemID uint   `json:"food_item_id"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	UnitPrice  string `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	LineTotal  string `json:"line_total"`
}

type cartResponse struct {
	UserID        uint           `json:"user_id"`
	Items         []lineResponse `json:"items"`
	TotalQuantity int            `json:"total_quantity"`
	Subtotal      string         `json:"subtotal"`
	Tax           string         `json:"tax"`
	GrandTotal    string         `json:"grand_total"`
}

func newCartResponse(v *services.CartView) cartResponse {
	items := make([]lineResponse, 0, len(v.Lines))
	for _, l := range v.Lines {
		items = append(items, lineResponse{
			FoodItemID: l.FoodItemID,
			Name:       l.Name,
			Image:      l.Image,
			UnitPrice:  money(l.UnitPrice),
			Quantity:   l.Quantity,
			LineTotal:  money(l.Total()),
		})
	}
	return cartResponse{
		UserID:        v.UserID,
		Items:         items,
		TotalQuantity: v.TotalQuantity,
		Subtotal:      money(v.Subtotal),
		Tax:           money(v.Tax),
		GrandTotal:    money(v.GrandTotal),
	}
}

type orderResponse struct {
	ID               uint           `json:"id"`
	UserID           uint           `json:"user_id"`
	TableNo          int            `json:"table_no"`
	OrderedAt        time.Time      `json:"ordered_at"`
	PaymentType      string         `json:"payment_type"`
	PaymentStatus    string         `json:"payment_status"`
	Status           string         `json:"status"`
	PaymentReference string         `json:"payment_reference,omitempty"`
	Items            []lineResponse `json:"items"`
	ItemCount        int            `json:"item_count"`
	TotalAmount      string         `json:"total_amount"`
	Tax              string         `json:"tax"`
	GrandTotal       string         `json:"grand_total"`
	ChargedAmount    string         `json:"charged_amount,omitempty"`
	CashDue          string         `json:"cash_due,omitempty"`
}

func newOrderResponse(o *models.Order, pricing services.PricingEngine) orderResponse {
	items := make([]lineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, lineResponse{
			FoodItemID: l.FoodItemID,
			Name:       l.Name,
			UnitPrice:  money(l.UnitPrice),
			Quantity:   l.Quantity,
			LineTotal:  money(l.LineTotal()),
		})
	}
	tax := pricing.Tax(o.TotalAmount)
	resp := orderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		TableNo:          o.TableNo,
		OrderedAt:        o.OrderedAt,
		PaymentType:      o.PaymentType,
		PaymentStatus:    o.PaymentStatus,
		Status:           o.Status,
		PaymentReference: o.Reference(),
		Items:            items,
		ItemCount:        o.ItemCount(),
		TotalAmount:      money(o.TotalAmount),
		Tax:              money(tax),
		GrandTotal:       money(services.GrandTotal(o.TotalAmount, tax)),
	}
	if o.IsCard() {
		resp.ChargedAmount = money(o.ChargedAmount)
	}
	if o.CashDue.IsPositive() {
		resp.CashDue = money(o.CashDue)
	}
	return resp
}

type foodResponse struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Image        string `json:"image"`
	Price        string `json:"price"`
	Unit         string `json:"unit"`
	AvailableQty int    `json:"available_qty"`
	IsAvailable  bool   `json:"is_available"`
}

func newFoodResponse(f *models.FoodItem) foodResponse {
	return foodResponse{
		ID:           f.ID,
		Name:         f.Name,
		Description:  f.Description,
		Image:        f.Image,
		Price:        money(f.BasePrice),
		Unit:         f.Unit,
		AvailableQty: f.AvailableQty,
		IsAvailable:  f.IsAvailable,
	}
}
