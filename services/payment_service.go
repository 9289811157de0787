package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type WebhookResult struct {
	Event   *PaymentEvent
	Order   *models.Order
	Applied bool
	// Skipped explains why an acknowledged delivery changed nothing.
	Skipped string
}

// PaymentService reconciles provider callbacks with the ledger.
type PaymentService struct {
	ledger        *OrderLedger
	provider      CheckoutProvider
	locker        Locker
	notifications *NotificationService
}

func NewPaymentService(ledger *OrderLedger, provider CheckoutProvider, locker Locker, notifications *NotificationService) *PaymentService {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &PaymentService{ledger: ledger, provider: provider, locker: locker, notifications: notifications}
}

func (s *PaymentService) Provider() CheckoutProvider {
	return s.provider
}

// HandleWebhook returns ErrValidation for payloads that cannot be read. Every
// other outcome, including unknown order codes, is reported in WebhookResult
// so the caller can acknowledge it.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, header http.Header) (*WebhookResult, error) {
	event, err := s.provider.ParseWebhook(body, header)
	if err != nil {
		return nil, err
	}
	result := &WebhookResult{Event: event}

	if event.OrderCode == "" || !event.Outcome.IsTerminal() {
		result.Skipped = fmt.Sprintf("status %q is not final", event.RawStatus)
		utils.InfoLogger.WithField("order_code", event.OrderCode).
			WithField("status", event.RawStatus).
			Info("Webhook without a final payment status")
		return result, nil
	}

	release, ok, err := s.locker.Acquire(ctx, event.OrderCode)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Webhook lock unavailable, applying without it")
	} else if !ok {
		result.Skipped = "another delivery for this order is being processed"
		return result, nil
	}
	defer release()

	return s.apply(ctx, result, "webhook")
}

// ApplyOutcome is the reconciliation path used by the payment monitor.
func (s *PaymentService) ApplyOutcome(ctx context.Context, orderCode string, outcome PaymentOutcome) (*WebhookResult, error) {
	result := &WebhookResult{Event: &PaymentEvent{
		Provider:  s.provider.Name(),
		OrderCode: orderCode,
		Outcome:   outcome,
		RawStatus: string(outcome),
	}}
	return s.apply(ctx, result, "reconcile")
}

func (s *PaymentService) apply(ctx context.Context, result *WebhookResult, source string) (*WebhookResult, error) {
	event := result.Event
	order, applied, err := s.ledger.ApplyPaymentOutcome(ctx, event.OrderCode, event.Outcome)
	if errors.Is(err, ErrNotFound) {
		utils.InfoLogger.WithField("order_code", event.OrderCode).Warn("Payment result for an unknown order code")
		result.Skipped = "unknown order code"
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Order = order
	result.Applied = applied
	log := utils.InfoLogger.WithField("order_id", order.ID).
		WithField("order_code", event.OrderCode).
		WithField("outcome", event.Outcome).
		WithField("source", source)
	if !applied {
		result.Skipped = "order already " + order.PaymentStatus
		switch {
		case order.PaymentStatus == models.PaymentStatusPending:
			result.Skipped = "superseded checkout session"
			log.Info("Result for a superseded checkout session ignored")
		case event.Outcome == OutcomePaid && order.PaymentStatus != models.PaymentStatusPaid:
			log.Warn("Paid result arrived for an order that is no longer awaiting payment")
		case event.Outcome == OutcomePaid && order.Reference() != event.OrderCode:
			log.Warn("A second checkout session was paid for an already paid order")
		default:
			log.Info("Duplicate payment result ignored")
		}
		return result, nil
	}

	log.Info("Payment result applied")
	s.notify(ctx, order, event.Outcome)
	return result, nil
}

func (s *PaymentService) notify(ctx context.Context, order *models.Order, outcome PaymentOutcome) {
	if s.notifications == nil {
		return
	}
	n := &models.Notification{
		UserID:  &order.UserID,
		OrderID: &order.ID,
		Type:    models.NotificationPayment,
	}
	if outcome == OutcomePaid {
		n.Title = "Payment received"
		n.Message = fmt.Sprintf("Order #%d for table %d was paid (%s).", order.ID, order.TableNo, utils.FormatMoney(order.ChargedAmount))
	} else {
		n.Title = "Payment failed"
		n.Message = fmt.Sprintf("Payment for order #%d at table %d failed; the order was cancelled.", order.ID, order.TableNo)
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		utils.ErrorLogger.WithError(err).WithField("order_id", order.ID).Error("Failed to store payment notification")
	}
}
