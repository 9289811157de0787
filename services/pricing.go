package services

import (
	"github.com/shopspring/decimal"
)

var DefaultTaxRate = decimal.RequireFromString("0.05")

// PricedLine is a cart or order line with its unit price resolved.
type PricedLine struct {
	FoodItemID uint            `json:"food_item_id"`
	Name       string          `json:"name"`
	Image      string          `json:"image"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

func (l PricedLine) Total() decimal.Decimal {
	return LineTotal(l.UnitPrice, l.Quantity)
}

type Quote struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// PricingEngine holds the tax rate. It has no other state.
type PricingEngine struct {
	TaxRate decimal.Decimal
}

func NewPricingEngine(rate decimal.Decimal) PricingEngine {
	if rate.IsNegative() {
		rate = DefaultTaxRate
	}
	return PricingEngine{TaxRate: rate}
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

func Subtotal(lines []PricedLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Tax rounds half away from zero to cents.
func (p PricingEngine) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(2)
}

func GrandTotal(subtotal, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Add(tax)
}

func (p PricingEngine) Quote(lines []PricedLine) Quote {
	sub := Subtotal(lines)
	tax := p.Tax(sub)
	return Quote{Subtotal: sub, Tax: tax, GrandTotal: GrandTotal(sub, tax)}
}

// MinorUnits converts an amount to integer cents for the payment provider.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
