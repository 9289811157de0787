package models

import "time"

type Table struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TableNo   int       `gorm:"not null;uniqueIndex" json:"table_no"`
	ManagerID uint      `gorm:"not null;index" json:"manager_id"`
	Manager   User      `gorm:"foreignKey:ManagerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Seats     int       `gorm:"not null;default:4" json:"seats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
