package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeremiapane/restaurant-orders/models"
	"gorm.io/gorm"
)

// CatalogGateway resolves food items. The catalog itself is managed elsewhere.
type CatalogGateway interface {
	GetFoodItem(ctx context.Context, id uint) (*models.FoodItem, error)
	GetFoodItems(ctx context.Context, ids []uint) (map[uint]models.FoodItem, error)
	ListFoodItems(ctx context.Context, onlyAvailable bool) ([]models.FoodItem, error)
}

// Directory answers the user and table questions the pipeline validates against.
type Directory interface {
	UserExists(ctx context.Context, id uint) (bool, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	TableBelongsToKnownManager(ctx context.Context, tableNo int) (bool, error)
}

type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (g *GormCatalog) GetFoodItem(ctx context.Context, id uint) (*models.FoodItem, error) {
	var item models.FoodItem
	if err := g.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: food item %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &item, nil
}

// GetFoodItems returns only the items that still exist.
func (g *GormCatalog) GetFoodItems(ctx context.Context, ids []uint) (map[uint]models.FoodItem, error) {
	out := make(map[uint]models.FoodItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.FoodItem
	if err := g.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (g *GormCatalog) ListFoodItems(ctx context.Context, onlyAvailable bool) ([]models.FoodItem, error) {
	q := g.db.WithContext(ctx).Order("name")
	if onlyAvailable {
		q = q.Where("is_available = ?", true)
	}
	var items []models.FoodItem
	return items, q.Find(&items).Error
}

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) UserExists(ctx context.Context, id uint) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (d *GormDirectory) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

// TableBelongsToKnownManager is true when the table exists and its manager is a
// manager or owner account.
func (d *GormDirectory) TableBelongsToKnownManager(ctx context.Context, tableNo int) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.Table{}).
		Joins("JOIN users ON users.id = tables.manager_id").
		Where("tables.table_no = ? AND users.role IN ?", tableNo, []string{models.RoleManager, models.RoleOwner}).
		Count(&n).Error
	return n > 0, err
}
