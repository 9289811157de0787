package models

// All returns every model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Table{},
		&FoodItem{},
		&CartItem{},
		&Order{},
		&OrderLine{},
		&PaymentSession{},
		&Notification{},
	}
}
