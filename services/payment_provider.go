package services

import (
	"context"
	"net/http"
)

type PaymentOutcome string

const (
	OutcomePending PaymentOutcome = "pending"
	OutcomePaid    PaymentOutcome = "paid"
	OutcomeFailed  PaymentOutcome = "failed"
	OutcomeUnknown PaymentOutcome = "unknown"
)

func (o PaymentOutcome) IsTerminal() bool {
	return o == OutcomePaid || o == OutcomeFailed
}

type SessionRequest struct {
	OrderID     uint
	AmountMinor int64
	Currency    string
	Description string
	// MerchantReference is echoed back by the provider on its dashboard.
	MerchantReference string
}

type CheckoutSession struct {
	CheckoutURL string `json:"checkout_url"`
	OrderCode   string `json:"order_code"`
}

// PaymentEvent is a provider webhook reduced to what the ledger needs.
type PaymentEvent struct {
	Provider  string
	OrderCode string
	Outcome   PaymentOutcome
	RawStatus string
}

func (e PaymentEvent) StatusIsPaid() bool {
	return e.Outcome == OutcomePaid
}

// CheckoutProvider is a hosted checkout integration. Implementations must
// return errors wrapping ErrUpstream for network failures and non-2xx replies,
// and ErrValidation for webhook payloads they cannot read.
type CheckoutProvider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*CheckoutSession, error)
	CheckStatus(ctx context.Context, orderCode string) (PaymentOutcome, error)
	ParseWebhook(body []byte, header http.Header) (*PaymentEvent, error)
}
