package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeremiapane/restaurant-orders/models"
	"gorm.io/gorm"
)

type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationUnread
	}
	return s.db.WithContext(ctx).Create(n).Error
}

// ForUser returns the user's notifications plus broadcast ones, newest first.
func (s *NotificationService) ForUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Where("user_id = ? OR user_id IS NULL", userID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if unreadOnly {
		q = q.Where("status = ?", models.NotificationUnread)
	}
	var out []models.Notification
	return out, q.Find(&out).Error
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND (user_id = ? OR user_id IS NULL)", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: notification %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&n).Update("status", models.NotificationRead).Error
}
