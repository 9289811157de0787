package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type FoodItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Image        string          `gorm:"type:varchar(255)" json:"image"`
	BasePrice    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"base_price"`
	Unit         string          `gorm:"type:varchar(50)" json:"unit"`
	AvailableQty int             `gorm:"not null;default:0" json:"available_qty"`
	IsAvailable  bool            `gorm:"not null;default:true" json:"is_available"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
