package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentTypeCash = "cash"
	PaymentTypeCard = "card"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`
	User   User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	// TableNo is kept for history; ActiveTableNo mirrors it only while the order
	// is pending or preparing, and its unique index allows one active order per table.
	TableNo          int             `gorm:"not null;index" json:"table_no"`
	ActiveTableNo    *int            `gorm:"uniqueIndex" json:"-"`
	OrderedAt        time.Time       `gorm:"not null" json:"ordered_at"`
	PaymentType      string          `gorm:"type:varchar(10);not null" json:"payment_type"`
	PaymentStatus    string          `gorm:"type:varchar(10);not null;default:'pending'" json:"payment_status"`
	Status           string          `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentReference *string         `gorm:"type:varchar(64);uniqueIndex" json:"payment_reference,omitempty"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`
	// ChargedAmount is what the hosted checkout asks for (or took, once paid).
	ChargedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"charged_amount"`
	// CashDue is the part of a paid card order added later and settled in cash.
	CashDue   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"cash_due"`
	Lines     []OrderLine     `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"lines"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func IsActiveStatus(status string) bool {
	return status == OrderStatusPending || status == OrderStatusPreparing
}

func (o *Order) IsActive() bool {
	return IsActiveStatus(o.Status)
}

func (o *Order) IsCard() bool {
	return o.PaymentType == PaymentTypeCard
}

func (o *Order) AwaitingCardPayment() bool {
	return o.IsCard() && o.PaymentStatus == PaymentStatusPending
}

func (o *Order) Reference() string {
	if o.PaymentReference == nil {
		return ""
	}
	return *o.PaymentReference
}

func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}
