package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is an immutable copy of a cart line taken at checkout.
type OrderLine struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	OrderID    uint            `gorm:"not null;index" json:"order_id"`
	FoodItemID uint            `gorm:"not null" json:"food_item_id"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
