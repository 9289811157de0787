package models

import "time"

// PaymentSession is one hosted checkout opened for an order. A re-issued
// card order gets a new session, but the older ones stay payable at the
// provider, so every code is kept to route late results back to the order.
type PaymentSession struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	OrderCode   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_code"`
	CheckoutURL string    `gorm:"type:varchar(512)" json:"checkout_url"`
	AmountMinor int64     `gorm:"not null" json:"amount_minor"`
	Currency    string    `gorm:"type:varchar(3)" json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}
