package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const (
	OrderCreated       = "order.created"
	OrderUpdated       = "order.updated"
	OrderStatusChanged = "order.status_changed"
	PaymentPending     = "payment.pending"
	PaymentPaid        = "payment.paid"
	PaymentFailed      = "payment.failed"
)

type OrderEvent struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	OrderID          uint      `json:"order_id"`
	UserID           uint      `json:"user_id"`
	TableNo          int       `json:"table_no"`
	PaymentType      string    `json:"payment_type"`
	PaymentStatus    string    `json:"payment_status"`
	Status           string    `json:"status"`
	TotalAmount      string    `json:"total_amount"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	ItemCount        int       `json:"item_count"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func NewOrderEvent(eventType string, o *models.Order) OrderEvent {
	return OrderEvent{
		ID:               uuid.NewString(),
		Type:             eventType,
		OrderID:          o.ID,
		UserID:           o.UserID,
		TableNo:          o.TableNo,
		PaymentType:      o.PaymentType,
		PaymentStatus:    o.PaymentStatus,
		Status:           o.Status,
		TotalAmount:      utils.FormatMoney(o.TotalAmount),
		PaymentReference: o.Reference(),
		ItemCount:        o.ItemCount(),
		OccurredAt:       time.Now().UTC(),
	}
}

// Publisher sends events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, evt OrderEvent) error
	Close() error
}

// Broadcaster pushes events to connected staff clients.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}
