package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/restaurant-orders/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
)

// decreaseAttempts bounds the decrement/delete retry when another request keeps
// changing the same line between the two guarded statements.
const decreaseAttempts = 5

type CartView struct {
	UserID        uint
	Lines         []PricedLine
	TotalQuantity int
	Quote
}

// CartService keeps one row per (user, food item). Every mutation is a single
// conditional statement so concurrent requests never lose an update.
type CartService struct {
	db        *gorm.DB
	catalog   CatalogGateway
	directory Directory
	pricing   PricingEngine
}

func NewCartService(db *gorm.DB, catalog CatalogGateway, directory Directory, pricing PricingEngine) *CartService {
	return &CartService{db: db, catalog: catalog, directory: directory, pricing: pricing}
}

func (s *CartService) requireUser(ctx context.Context, userID uint) error {
	ok, err := s.directory.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return nil
}

func (s *CartService) AddItem(ctx context.Context, userID, foodItemID uint, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	food, err := s.catalog.GetFoodItem(ctx, foodItemID)
	if err != nil {
		return nil, err
	}
	if !food.IsAvailable {
		return nil, fmt.Errorf("%w: %s is not available", ErrInvalidState, food.Name)
	}

	item := models.CartItem{UserID: userID, FoodItemID: foodItemID, Quantity: quantity}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "food_item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("cart_items.quantity + ?", quantity),
			"updated_at": time.Now(),
		}),
	}).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return s.find(ctx, userID, foodItemID)
}

// ChangeQuantity moves a line up or down by one. A nil item with a nil error
// means the line was removed.
func (s *CartService) ChangeQuantity(ctx context.Context, userID, foodItemID uint, direction string) (*models.CartItem, error) {
	switch direction {
	case DirectionIncrease:
		res := s.lineQuery(ctx, userID, foodItemID).
			Update("quantity", gorm.Expr("quantity + 1"))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, fmt.Errorf("%w: food item %d is not in the cart", ErrNotFound, foodItemID)
		}
		return s.find(ctx, userID, foodItemID)
	case DirectionDecrease:
		return s.decrease(ctx, userID, foodItemID)
	}
	return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidState, direction)
}

func (s *CartService) decrease(ctx context.Context, userID, foodItemID uint) (*models.CartItem, error) {
	for i := 0; i < decreaseAttempts; i++ {
		res := s.lineQuery(ctx, userID, foodItemID).
			Where("quantity > 1").
			Update("quantity", gorm.Expr("quantity - 1"))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return s.find(ctx, userID, foodItemID)
		}

		res = s.db.WithContext(ctx).
			Where("user_id = ? AND food_item_id = ? AND quantity <= 1", userID, foodItemID).
			Delete(&models.CartItem{})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return nil, nil
		}

		if _, err := s.find(ctx, userID, foodItemID); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: cart line kept changing, try again", ErrInvalidState)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, foodItemID uint) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND food_item_id = ?", userID, foodItemID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: food item %d is not in the cart", ErrNotFound, foodItemID)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}

func (s *CartService) View(ctx context.Context, userID uint) (*CartView, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	lines, err := s.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &CartView{UserID: userID, Lines: lines, Quote: s.pricing.Quote(lines)}
	for _, l := range lines {
		view.TotalQuantity += l.Quantity
	}
	return view, nil
}

// Lines prices the cart against the catalog. Entries whose food item no longer
// exists are skipped.
func (s *CartService) Lines(ctx context.Context, userID uint) ([]PricedLine, error) {
	var items []models.CartItem
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []PricedLine{}, nil
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.FoodItemID)
	}
	foods, err := s.catalog.GetFoodItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]PricedLine, 0, len(items))
	for _, it := range items {
		food, ok := foods[it.FoodItemID]
		if !ok {
			continue
		}
		lines = append(lines, PricedLine{
			FoodItemID: it.FoodItemID,
			Name:       food.Name,
			Image:      food.Image,
			UnitPrice:  food.BasePrice,
			Quantity:   it.Quantity,
		})
	}
	return lines, nil
}

func (s *CartService) lineQuery(ctx context.Context, userID, foodItemID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("user_id = ? AND food_item_id = ?", userID, foodItemID)
}

func (s *CartService) find(ctx context.Context, userID, foodItemID uint) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND food_item_id = ?", userID, foodItemID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: food item %d is not in the cart", ErrNotFound, foodItemID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// consumeCart deletes exactly the lines that were priced for checkout. A line
// whose quantity changed since the snapshot aborts the transaction.
func consumeCart(tx *gorm.DB, userID uint, lines []PricedLine) error {
	for _, l := range lines {
		res := tx.Where("user_id = ? AND food_item_id = ? AND quantity = ?", userID, l.FoodItemID, l.Quantity).
			Delete(&models.CartItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errCheckoutConflict
		}
	}
	return nil
}
