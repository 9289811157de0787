package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-orders/events"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
	"gorm.io/gorm"
)

const defaultCheckoutAttempts = 3

// errCheckoutConflict means another request touched the cart or the table's
// active order while this checkout was running. The checkout starts over.
var errCheckoutConflict = errors.New("checkout conflict")

// Settlement is how an order will be paid.
type Settlement interface {
	PaymentType() string
}

type CashSettlement struct{}

func (CashSettlement) PaymentType() string { return models.PaymentTypeCash }

type CardSettlement struct{}

func (CardSettlement) PaymentType() string { return models.PaymentTypeCard }

func ParseSettlement(paymentType string) (Settlement, error) {
	switch strings.ToLower(strings.TrimSpace(paymentType)) {
	case models.PaymentTypeCash:
		return CashSettlement{}, nil
	case models.PaymentTypeCard, "viva":
		return CardSettlement{}, nil
	}
	return nil, fmt.Errorf("%w: payment_type must be cash or card", ErrValidation)
}

// CheckoutResult is either *OrderPlaced or *PaymentRedirect.
type CheckoutResult interface {
	checkoutResult()
}

type OrderPlaced struct {
	Order  *models.Order
	Merged bool
}

func (*OrderPlaced) checkoutResult() {}

// Outcome is "updated" for a merge into the table's active order.
func (r *OrderPlaced) Outcome() string {
	if r.Merged {
		return "updated"
	}
	return "created"
}

type PaymentRedirect struct {
	OrderID     uint   `json:"order_id"`
	CheckoutURL string `json:"checkout_url"`
	OrderCode   string `json:"order_code"`
}

func (*PaymentRedirect) checkoutResult() {}

type EventPublisher interface {
	Publish(ctx context.Context, evt events.OrderEvent)
}

type LedgerOptions struct {
	Currency         string
	PaidOrderStatus  string
	CheckoutAttempts int
}

// OrderLedger owns orders. The unique active_table_no column is what keeps a
// table to one active order; the ledger retries instead of locking.
type OrderLedger struct {
	db        *gorm.DB
	cart      *CartService
	directory Directory
	pricing   PricingEngine
	payments  CheckoutProvider
	events    EventPublisher
	opts      LedgerOptions
	now       func() time.Time
}

func NewOrderLedger(db *gorm.DB, cart *CartService, directory Directory, pricing PricingEngine,
	payments CheckoutProvider, publisher EventPublisher, opts LedgerOptions) *OrderLedger {
	if opts.CheckoutAttempts <= 0 {
		opts.CheckoutAttempts = defaultCheckoutAttempts
	}
	if opts.PaidOrderStatus != models.OrderStatusPending {
		opts.PaidOrderStatus = models.OrderStatusPreparing
	}
	return &OrderLedger{
		db:        db,
		cart:      cart,
		directory: directory,
		pricing:   pricing,
		payments:  payments,
		events:    publisher,
		opts:      opts,
		now:       time.Now,
	}
}

func (l *OrderLedger) Checkout(ctx context.Context, userID uint, tableNo int, paymentType string) (CheckoutResult, error) {
	settlement, err := ParseSettlement(paymentType)
	if err != nil {
		return nil, err
	}
	if tableNo <= 0 {
		return nil, fmt.Errorf("%w: table_no must be positive", ErrValidation)
	}

	ok, err := l.directory.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	ok, err = l.directory.TableBelongsToKnownManager(ctx, tableNo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: table %d", ErrNotFound, tableNo)
	}

	return l.settle(ctx, userID, tableNo, settlement)
}

func (l *OrderLedger) settle(ctx context.Context, userID uint, tableNo int, settlement Settlement) (CheckoutResult, error) {
	for attempt := 1; attempt <= l.opts.CheckoutAttempts; attempt++ {
		lines, err := l.cart.Lines(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			return nil, fmt.Errorf("%w: cart is empty", ErrInvalidState)
		}

		var result CheckoutResult
		switch settlement.(type) {
		case CashSettlement:
			result, err = l.settleCash(ctx, userID, tableNo, lines)
		case CardSettlement:
			result, err = l.settleCard(ctx, userID, tableNo, lines)
		default:
			return nil, fmt.Errorf("%w: unsupported settlement %T", ErrValidation, settlement)
		}
		if errors.Is(err, errCheckoutConflict) {
			utils.InfoLogger.WithField("table_no", tableNo).
				WithField("attempt", attempt).
				Info("Checkout conflicted with a concurrent request, retrying")
			continue
		}
		return result, err
	}
	return nil, fmt.Errorf("%w: table %d kept changing during checkout", ErrInvalidState, tableNo)
}

// settleCash consumes the cart and merges into the table's active order, or
// opens a new one, in a single transaction. Lines merged into a paid card
// order are owed in cash and tracked as cash_due.
func (l *OrderLedger) settleCash(ctx context.Context, userID uint, tableNo int, lines []PricedLine) (CheckoutResult, error) {
	var placed OrderPlaced
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := consumeCart(tx, userID, lines); err != nil {
			return err
		}

		var active models.Order
		err := tx.Where("active_table_no = ?", tableNo).First(&active).Error
		switch {
		case err == nil:
			if active.AwaitingCardPayment() {
				return fmt.Errorf("%w: table %d has a card order awaiting payment", ErrInvalidState, tableNo)
			}
			if err := l.appendLines(tx, &active, lines); err != nil {
				return err
			}
			placed.Merged = true
			placed.Order = &active
		case errors.Is(err, gorm.ErrRecordNotFound):
			order, err := l.createActiveOrder(tx, userID, tableNo, models.PaymentTypeCash, lines)
			if err != nil {
				return err
			}
			placed.Order = order
		default:
			return err
		}
		placed.Order.Lines = nil
		return tx.Preload("Lines").First(placed.Order, placed.Order.ID).Error
	})
	if err != nil {
		return nil, err
	}

	evt := events.OrderCreated
	if placed.Merged {
		evt = events.OrderUpdated
	}
	l.publish(ctx, evt, placed.Order)
	return &placed, nil
}

// settleCard opens (or re-issues) a pending card order, then asks the provider
// for a hosted session. The cart stays untouched until the payment is confirmed.
func (l *OrderLedger) settleCard(ctx context.Context, userID uint, tableNo int, lines []PricedLine) (CheckoutResult, error) {
	var order *models.Order
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active models.Order
		err := tx.Where("active_table_no = ?", tableNo).First(&active).Error
		switch {
		case err == nil:
			if !l.canReissue(&active, userID) {
				return fmt.Errorf("%w: table %d already has an active order", ErrInvalidState, tableNo)
			}
			if err := l.replaceLines(tx, &active, lines); err != nil {
				return err
			}
			order = &active
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			order, err = l.createActiveOrder(tx, userID, tableNo, models.PaymentTypeCard, lines)
			return err
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	amount := MinorUnits(l.pricing.Quote(lines).GrandTotal)
	session, err := l.payments.CreateCheckoutSession(ctx, SessionRequest{
		OrderID:           order.ID,
		AmountMinor:       amount,
		Currency:          l.opts.Currency,
		Description:       fmt.Sprintf("Table %d order #%d", tableNo, order.ID),
		MerchantReference: fmt.Sprintf("order-%d", order.ID),
	})
	if err != nil {
		utils.ErrorLogger.WithError(err).WithField("order_id", order.ID).Error("Failed to open checkout session")
		if !errors.Is(err, ErrUpstream) {
			err = fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return nil, err
	}

	charged := FromMinorUnits(amount)
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.PaymentSession{
			OrderID:     order.ID,
			OrderCode:   session.OrderCode,
			CheckoutURL: session.CheckoutURL,
			AmountMinor: amount,
			Currency:    l.opts.Currency,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ?", order.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"payment_reference": session.OrderCode,
				"charged_amount":    charged,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order %d is no longer awaiting payment", ErrInvalidState, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.PaymentReference = &session.OrderCode
	order.ChargedAmount = charged
	l.publish(ctx, events.PaymentPending, order)

	return &PaymentRedirect{
		OrderID:     order.ID,
		CheckoutURL: session.CheckoutURL,
		OrderCode:   session.OrderCode,
	}, nil
}

// canReissue allows a user to retry their own unpaid card order, e.g. after
// the provider failed or the cart changed.
func (l *OrderLedger) canReissue(o *models.Order, userID uint) bool {
	return o.IsCard() && o.UserID == userID &&
		o.PaymentStatus == models.PaymentStatusPending &&
		o.Status == models.OrderStatusPending
}

func (l *OrderLedger) createActiveOrder(tx *gorm.DB, userID uint, tableNo int, paymentType string, lines []PricedLine) (*models.Order, error) {
	slot := tableNo
	order := &models.Order{
		UserID:        userID,
		TableNo:       tableNo,
		ActiveTableNo: &slot,
		OrderedAt:     l.now(),
		PaymentType:   paymentType,
		PaymentStatus: models.PaymentStatusPending,
		Status:        models.OrderStatusPending,
		TotalAmount:   Subtotal(lines),
		Lines:         snapshotLines(lines),
	}
	if err := tx.Create(order).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, errCheckoutConflict
		}
		return nil, err
	}
	return order, nil
}

func (l *OrderLedger) appendLines(tx *gorm.DB, order *models.Order, lines []PricedLine) error {
	sub := Subtotal(lines)
	updates := map[string]interface{}{
		"total_amount": gorm.Expr("total_amount + ?", sub),
		"updated_at":   l.now(),
	}
	if order.IsCard() {
		updates["cash_due"] = gorm.Expr("cash_due + ?", sub)
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND active_table_no = ? AND payment_status = ?", order.ID, order.TableNo, order.PaymentStatus).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errCheckoutConflict
	}
	return l.insertLines(tx, order.ID, lines)
}

func (l *OrderLedger) replaceLines(tx *gorm.DB, order *models.Order, lines []PricedLine) error {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND active_table_no = ?", order.ID, models.PaymentStatusPending, order.TableNo).
		Updates(map[string]interface{}{
			"total_amount":      Subtotal(lines),
			"payment_reference": nil,
			"charged_amount":    decimal.Zero,
			"ordered_at":        l.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errCheckoutConflict
	}
	if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderLine{}).Error; err != nil {
		return err
	}
	order.TotalAmount = Subtotal(lines)
	order.PaymentReference = nil
	return l.insertLines(tx, order.ID, lines)
}

func (l *OrderLedger) insertLines(tx *gorm.DB, orderID uint, lines []PricedLine) error {
	snap := snapshotLines(lines)
	for i := range snap {
		snap[i].OrderID = orderID
	}
	return tx.Create(&snap).Error
}

func snapshotLines(lines []PricedLine) []models.OrderLine {
	out := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, models.OrderLine{
			FoodItemID: l.FoodItemID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
		})
	}
	return out
}

// FindActiveOrderForTable returns nil without error when the table is free.
func (l *OrderLedger) FindActiveOrderForTable(ctx context.Context, tableNo int) (*models.Order, error) {
	var order models.Order
	err := l.db.WithContext(ctx).Preload("Lines").Where("active_table_no = ?", tableNo).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ActiveOrdersByTable maps table number to its active order.
func (l *OrderLedger) ActiveOrdersByTable(ctx context.Context, tableNos []int) (map[int]models.Order, error) {
	out := make(map[int]models.Order)
	if len(tableNos) == 0 {
		return out, nil
	}
	var orders []models.Order
	err := l.db.WithContext(ctx).Preload("Lines").
		Where("active_table_no IN ?", tableNos).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		out[o.TableNo] = o
	}
	return out, nil
}

func (l *OrderLedger) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := l.db.WithContext(ctx).Preload("Lines").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByReference resolves any checkout code ever issued for an order,
// including sessions superseded by a re-issue.
func (l *OrderLedger) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	order, _, err := l.resolveReference(ctx, reference)
	return order, err
}

func (l *OrderLedger) resolveReference(ctx context.Context, reference string) (*models.Order, *models.PaymentSession, error) {
	if reference == "" {
		return nil, nil, fmt.Errorf("%w: empty order code", ErrNotFound)
	}
	db := l.db.WithContext(ctx)

	var session models.PaymentSession
	err := db.Where("order_code = ?", reference).First(&session).Error
	switch {
	case err == nil:
		order, err := l.GetOrder(ctx, session.OrderID)
		if err != nil {
			return nil, nil, err
		}
		return order, &session, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, err
	}

	var order models.Order
	err = db.Preload("Lines").Where("payment_reference = ?", reference).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: order code %s", ErrNotFound, reference)
		}
		return nil, nil, err
	}
	return &order, nil, nil
}

// SessionCodes lists the checkout codes issued for an order, newest first.
func (l *OrderLedger) SessionCodes(ctx context.Context, orderID uint) ([]string, error) {
	var codes []string
	err := l.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("order_id = ?", orderID).
		Order("id DESC").
		Pluck("order_code", &codes).Error
	return codes, err
}

var allowedTransitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusPreparing, models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusPreparing: {models.OrderStatusCompleted, models.OrderStatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus applies an explicit fulfillment transition.
func (l *OrderLedger) UpdateStatus(ctx context.Context, orderID uint, status string) (*models.Order, error) {
	switch status {
	case models.OrderStatusPending, models.OrderStatusPreparing, models.OrderStatusCompleted, models.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	order, err := l.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: order %d cannot move from %s to %s", ErrInvalidState, orderID, order.Status, status)
	}
	if order.IsCard() && order.PaymentStatus != models.PaymentStatusPaid && status != models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order %d is not paid yet", ErrInvalidState, orderID)
	}

	updates := map[string]interface{}{"status": status, "updated_at": l.now()}
	if !models.IsActiveStatus(status) {
		updates["active_table_no"] = nil
	}
	switch {
	case status == models.OrderStatusCompleted && !order.IsCard():
		updates["payment_status"] = models.PaymentStatusPaid
	case status == models.OrderStatusCancelled && order.PaymentStatus == models.PaymentStatusPending:
		updates["payment_status"] = models.PaymentStatusFailed
	}

	res := l.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?", orderID, order.Status, order.PaymentStatus).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: order %d changed concurrently", ErrInvalidState, orderID)
	}

	updated, err := l.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.publish(ctx, events.OrderStatusChanged, updated)
	return updated, nil
}

// ApplyPaymentOutcome records a terminal provider result. Every update is
// guarded by payment_status = pending, so a replayed outcome reports
// applied=false and changes nothing.
//
// A paid result for a superseded session still settles the order, at the
// amount that session charged. A failed result only counts for the current one.
func (l *OrderLedger) ApplyPaymentOutcome(ctx context.Context, reference string, outcome PaymentOutcome) (*models.Order, bool, error) {
	order, session, err := l.resolveReference(ctx, reference)
	if err != nil {
		return nil, false, err
	}

	var applied bool
	switch outcome {
	case OutcomePaid:
		charged := order.ChargedAmount
		if session != nil {
			charged = FromMinorUnits(session.AmountMinor)
		}
		applied, err = l.markPaid(ctx, order, reference, charged)
	case OutcomeFailed:
		if order.Reference() != reference {
			return order, false, nil
		}
		applied, err = l.markFailed(ctx, order.ID)
	default:
		return order, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return order, false, nil
	}

	updated, err := l.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, false, err
	}
	evt := events.PaymentPaid
	if outcome == OutcomeFailed {
		evt = events.PaymentFailed
	}
	l.publish(ctx, evt, updated)
	return updated, true, nil
}

func (l *OrderLedger) markPaid(ctx context.Context, order *models.Order, reference string, charged decimal.Decimal) (bool, error) {
	var applied bool
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND payment_status = ? AND status IN ?", order.ID, models.PaymentStatusPending,
				[]string{models.OrderStatusPending, models.OrderStatusPreparing}).
			Updates(map[string]interface{}{
				"payment_status":    models.PaymentStatusPaid,
				"status":            l.opts.PaidOrderStatus,
				"payment_reference": reference,
				"charged_amount":    charged,
				"updated_at":        l.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if order.Reference() != reference {
			utils.InfoLogger.WithField("order_id", order.ID).
				WithField("order_code", reference).
				Warn("Order settled through a superseded checkout session")
		}
		return releaseCart(tx, order.UserID, order.Lines)
	})
	return applied, err
}

// releaseCart takes a paid order's lines out of the user's cart. Items added
// after the checkout stay.
func releaseCart(tx *gorm.DB, userID uint, lines []models.OrderLine) error {
	for _, line := range lines {
		err := tx.Where("user_id = ? AND food_item_id = ? AND quantity <= ?", userID, line.FoodItemID, line.Quantity).
			Delete(&models.CartItem{}).Error
		if err != nil {
			return err
		}
		err = tx.Model(&models.CartItem{}).
			Where("user_id = ? AND food_item_id = ? AND quantity > ?", userID, line.FoodItemID, line.Quantity).
			Update("quantity", gorm.Expr("quantity - ?", line.Quantity)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *OrderLedger) markFailed(ctx context.Context, orderID uint) (bool, error) {
	res := l.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_type = ? AND payment_status = ?", orderID, models.PaymentTypeCard, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":  models.PaymentStatusFailed,
			"status":          models.OrderStatusCancelled,
			"active_table_no": nil,
			"updated_at":      l.now(),
		})
	return res.RowsAffected == 1, res.Error
}

// ExpireCardOrder cancels a card order whose hosted session was never paid.
func (l *OrderLedger) ExpireCardOrder(ctx context.Context, orderID uint) (bool, error) {
	applied, err := l.markFailed(ctx, orderID)
	if err != nil || !applied {
		return applied, err
	}
	if order, err := l.GetOrder(ctx, orderID); err == nil {
		l.publish(ctx, events.PaymentFailed, order)
	}
	return true, nil
}

// PendingCardOrders lists card orders still waiting on the provider.
func (l *OrderLedger) PendingCardOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := l.db.WithContext(ctx).
		Where("payment_type = ? AND payment_status = ?", models.PaymentTypeCard, models.PaymentStatusPending).
		Order("ordered_at").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (l *OrderLedger) publish(ctx context.Context, eventType string, order *models.Order) {
	if l.events == nil || order == nil {
		return
	}
	l.events.Publish(ctx, events.NewOrderEvent(eventType, order))
}
