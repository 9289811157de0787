package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-orders/events"
	"github.com/yeremiapane/restaurant-orders/models"
)

func cardOrder(t *testing.T, f *fixture, user models.User, tableNo int) *PaymentRedirect {
	t.Helper()
	f.add(t, user, f.foodA, 1)
	res, err := f.ledger.Checkout(context.Background(), user.ID, tableNo, "card")
	require.NoError(t, err)
	return res.(*PaymentRedirect)
}

func TestHandleWebhookFlatPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	redirect := cardOrder(t, f, f.staff, 3)

	body := []byte(fmt.Sprintf(`{"orderCode": %q, "status": "paid"}`, redirect.OrderCode))
	res, err := f.payments.HandleWebhook(ctx, body, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.Event.StatusIsPaid())
	assert.Equal(t, models.PaymentStatusPaid, res.Order.PaymentStatus)

	res, err = f.payments.HandleWebhook(ctx, body, nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.NotEmpty(t, res.Skipped)

	notes, err := f.notes.ForUser(ctx, f.staff.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1, "replayed webhook does not notify twice")
	assert.Equal(t, models.NotificationPayment, notes[0].Type)
	assert.Contains(t, notes[0].Message, "(10.50)", "notification shows the charged amount")
	assert.Contains(t, f.events.seen(), events.PaymentPaid)
}

func TestHandleWebhookVivaNativePayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	redirect := cardOrder(t, f, f.staff, 3)

	body := []byte(fmt.Sprintf(`{"EventTypeId":1796,"EventData":{"OrderCode":%s,"StatusId":"F"}}`, redirect.OrderCode))
	res, err := f.payments.HandleWebhook(ctx, body, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, redirect.OrderCode, res.Event.OrderCode)
	assert.Equal(t, int64(0), f.cartSize(t, f.staff))
}

func TestHandleWebhookFailedEvent(t *testing.T) {
	f := newFixture(t)
	redirect := cardOrder(t, f, f.staff, 3)

	body := []byte(fmt.Sprintf(`{"EventTypeId":1798,"EventData":{"OrderCode":%s,"StatusId":"E"}}`, redirect.OrderCode))
	res, err := f.payments.HandleWebhook(context.Background(), body, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.OrderStatusCancelled, res.Order.Status)
}

func TestHandleWebhookUnknownOrderCodeIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	res, err := f.payments.HandleWebhook(context.Background(), []byte(`{"orderCode":"999999","status":"paid"}`), nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "unknown order code", res.Skipped)
}

func TestHandleWebhookRejectsUnreadablePayload(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{``, `[]`, `{"status":"paid"}`, `{"orderCode":`} {
		_, err := f.payments.HandleWebhook(context.Background(), []byte(body), nil)
		assert.ErrorIs(t, err, ErrValidation, "body %q", body)
	}
}

func TestHandleWebhookIgnoresNonFinalStatus(t *testing.T) {
	f := newFixture(t)
	redirect := cardOrder(t, f, f.staff, 3)

	res, err := f.payments.HandleWebhook(context.Background(),
		[]byte(fmt.Sprintf(`{"orderCode":%q,"status":"pending"}`, redirect.OrderCode)), nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	order, err := f.ledger.GetOrder(context.Background(), redirect.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, false, nil
}

func TestHandleWebhookSkipsWhileLocked(t *testing.T) {
	f := newFixture(t)
	redirect := cardOrder(t, f, f.staff, 3)
	payments := NewPaymentService(f.ledger, f.provider, busyLocker{}, f.notes)

	res, err := payments.HandleWebhook(context.Background(),
		[]byte(fmt.Sprintf(`{"orderCode":%q,"status":"paid"}`, redirect.OrderCode)), nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	order, err := f.ledger.GetOrder(context.Background(), redirect.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
}

func TestPaymentMonitorSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := cardOrder(t, f, f.staff, 3)
	stale := cardOrder(t, f, f.staff2, 5)
	f.provider.statuses[paid.OrderCode] = OutcomePaid
	f.backdate(t, stale.OrderID, time.Hour)

	monitor := NewPaymentMonitor(f.ledger, f.payments, time.Minute, 15*time.Minute)
	monitor.Sweep(ctx)

	order, err := f.ledger.GetOrder(ctx, paid.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)

	order, err = f.ledger.GetOrder(ctx, stale.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)

	m := monitor.GetMetrics()
	assert.Equal(t, int64(1), m.Sweeps)
	assert.Equal(t, int64(2), m.Checked)
	assert.Equal(t, int64(1), m.Paid)
	assert.Equal(t, int64(1), m.Expired)
	assert.Equal(t, 0, m.PendingNow)
}

func TestHandleWebhookForSupersededSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := cardOrder(t, f, f.staff, 3)
	second := cardOrder(t, f, f.staff, 3)
	require.Equal(t, first.OrderID, second.OrderID)

	failed := []byte(fmt.Sprintf(`{"orderCode": %q, "status": "failed"}`, first.OrderCode))
	res, err := f.payments.HandleWebhook(ctx, failed, nil)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "superseded checkout session", res.Skipped)

	paid := []byte(fmt.Sprintf(`{"orderCode": %q, "status": "paid"}`, first.OrderCode))
	res, err = f.payments.HandleWebhook(ctx, paid, nil)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.PaymentStatusPaid, res.Order.PaymentStatus)
	assert.Equal(t, first.OrderID, res.Order.ID)
}

func TestPaymentMonitorFindsPaidSupersededSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := cardOrder(t, f, f.staff, 3)
	cardOrder(t, f, f.staff, 3)
	f.provider.statuses[first.OrderCode] = OutcomePaid
	f.backdate(t, first.OrderID, time.Hour)

	monitor := NewPaymentMonitor(f.ledger, f.payments, time.Minute, 15*time.Minute)
	monitor.Sweep(ctx)

	order, err := f.ledger.GetOrder(ctx, first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus, "paid, not expired")
	assert.Equal(t, int64(1), monitor.GetMetrics().Paid)
	assert.Equal(t, int64(0), monitor.GetMetrics().Expired)
}

func TestPaymentMonitorKeepsOrdersWhenProviderIsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	redirect := cardOrder(t, f, f.staff, 3)
	f.backdate(t, redirect.OrderID, time.Hour)
	f.provider.statusErr = fmt.Errorf("%w: timeout", ErrUpstream)

	monitor := NewPaymentMonitor(f.ledger, f.payments, time.Minute, 15*time.Minute)
	monitor.Sweep(ctx)

	order, err := f.ledger.GetOrder(ctx, redirect.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, int64(1), monitor.GetMetrics().Errors)
	assert.Equal(t, 1, monitor.GetMetrics().PendingNow)
}

func TestPaymentMonitorStopsWithContext(t *testing.T) {
	f := newFixture(t)
	monitor := NewPaymentMonitor(f.ledger, f.payments, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := monitor.Start(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
