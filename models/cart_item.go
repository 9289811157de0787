package models

import "time"

// CartItem is one line of a user's cart. The (user, food item) pair is unique
// so quantity changes are always single-row conditional updates.
type CartItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_cart_user_food" json:"user_id"`
	FoodItemID uint      `gorm:"not null;uniqueIndex:idx_cart_user_food" json:"food_item_id"`
	Quantity   int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
