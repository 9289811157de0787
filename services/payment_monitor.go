package services

import (
	"context"
	"sync"
	"time"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const monitorBatchSize = 100

type PaymentMetrics struct {
	Sweeps     int64     `json:"sweeps"`
	Checked    int64     `json:"checked"`
	Paid       int64     `json:"paid"`
	Failed     int64     `json:"failed"`
	Expired    int64     `json:"expired"`
	Errors     int64     `json:"errors"`
	LastSweep  time.Time `json:"last_sweep"`
	PendingNow int       `json:"pending_now"`
}

// PaymentMonitor catches what webhooks miss: it asks the provider about
// pending card orders and expires those whose session outlived the TTL.
type PaymentMonitor struct {
	ledger   *OrderLedger
	payments *PaymentService
	provider CheckoutProvider
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time

	mutex   sync.Mutex
	metrics PaymentMetrics
}

func NewPaymentMonitor(ledger *OrderLedger, payments *PaymentService, interval, ttl time.Duration) *PaymentMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PaymentMonitor{
		ledger:   ledger,
		payments: payments,
		provider: payments.Provider(),
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start runs sweeps until ctx is cancelled. The returned channel closes when
// the loop has exited.
func (pm *PaymentMonitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()
		utils.InfoLogger.Printf("Payment monitor started, interval %v, session ttl %v", pm.interval, pm.ttl)
		for {
			select {
			case <-ctx.Done():
				utils.InfoLogger.Println("Payment monitor stopped")
				return
			case <-ticker.C:
				pm.Sweep(ctx)
			}
		}
	}()
	return done
}

func (pm *PaymentMonitor) Sweep(ctx context.Context) {
	orders, err := pm.ledger.PendingCardOrders(ctx, monitorBatchSize)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Payment monitor could not list pending orders")
		pm.record(func(m *PaymentMetrics) { m.Errors++ })
		return
	}

	pending := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return
		}
		pm.record(func(m *PaymentMetrics) { m.Checked++ })

		settled, err := pm.reconcile(ctx, o)
		if err != nil {
			pm.record(func(m *PaymentMetrics) { m.Errors++ })
			pending++
			continue
		}
		if settled {
			continue
		}

		if pm.now().Sub(o.OrderedAt) > pm.ttl {
			expired, err := pm.ledger.ExpireCardOrder(ctx, o.ID)
			if err != nil {
				utils.ErrorLogger.WithError(err).WithField("order_id", o.ID).Error("Failed to expire card order")
				pm.record(func(m *PaymentMetrics) { m.Errors++ })
				continue
			}
			if expired {
				utils.InfoLogger.WithField("order_id", o.ID).Info("Card order expired without payment")
				pm.record(func(m *PaymentMetrics) { m.Expired++ })
				continue
			}
		}
		pending++
	}

	pm.record(func(m *PaymentMetrics) {
		m.Sweeps++
		m.LastSweep = pm.now()
		m.PendingNow = pending
	})
}

// reconcile asks the provider about every session issued for the order,
// newest first, since a superseded session can still be paid.
func (pm *PaymentMonitor) reconcile(ctx context.Context, o models.Order) (bool, error) {
	codes, err := pm.ledger.SessionCodes(ctx, o.ID)
	if err != nil {
		utils.ErrorLogger.WithError(err).WithField("order_id", o.ID).Error("Failed to list checkout sessions")
		return false, err
	}
	if len(codes) == 0 && o.Reference() != "" {
		codes = []string{o.Reference()}
	}

	for _, code := range codes {
		outcome, err := pm.provider.CheckStatus(ctx, code)
		if err != nil {
			utils.ErrorLogger.WithError(err).WithField("order_id", o.ID).Error("Payment status check failed")
			return false, err
		}
		if !outcome.IsTerminal() {
			continue
		}
		res, err := pm.payments.ApplyOutcome(ctx, code, outcome)
		if err != nil {
			return false, err
		}
		if res.Applied {
			pm.record(func(m *PaymentMetrics) {
				if outcome == OutcomePaid {
					m.Paid++
				} else {
					m.Failed++
				}
			})
			return true, nil
		}
	}
	return false, nil
}

func (pm *PaymentMonitor) record(fn func(m *PaymentMetrics)) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	fn(&pm.metrics)
}

func (pm *PaymentMonitor) GetMetrics() PaymentMetrics {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.metrics
}
