package models

import (
	"time"
)

const (
	NotificationPayment = "payment"
	NotificationOrder   = "order"

	NotificationUnread = "unread"
	NotificationRead   = "read"
)

type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	User      *User     `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	OrderID   *uint     `gorm:"index" json:"order_id,omitempty"`
	Title     string    `gorm:"type:varchar(100)" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Type      string    `gorm:"type:varchar(20);not null;default:'order'" json:"type"`
	Status    string    `gorm:"type:varchar(10);not null;default:'unread'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
