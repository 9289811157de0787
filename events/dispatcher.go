package events

import (
	"context"
	"time"

	"github.com/yeremiapane/restaurant-orders/utils"
)

const publishTimeout = 5 * time.Second

// Dispatcher fans an event out to the broker and the staff feed. Failures are
// logged; they never fail the request that produced the event.
type Dispatcher struct {
	publisher Publisher
	feed      Broadcaster
}

func NewDispatcher(publisher Publisher, feed Broadcaster) *Dispatcher {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	return &Dispatcher{publisher: publisher, feed: feed}
}

func (d *Dispatcher) Publish(ctx context.Context, evt OrderEvent) {
	if d == nil {
		return
	}
	if d.feed != nil {
		d.feed.Broadcast(evt.Type, evt)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(ctx, evt); err != nil {
		utils.ErrorLogger.WithError(err).
			WithField("event", evt.Type).
			WithField("order_id", evt.OrderID).
			Error("Failed to publish order event")
	}
}

func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	return d.publisher.Close()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, evt OrderEvent) error {
	utils.InfoLogger.WithField("event", evt.Type).
		WithField("order_id", evt.OrderID).
		WithField("table_no", evt.TableNo).
		Info("Order event")
	return nil
}

func (LogPublisher) Close() error { return nil }
