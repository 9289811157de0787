package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/yeremiapane/restaurant-orders/config"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
	Timeout       time.Duration
	// BackendURL overrides the Stripe API host. Tests point it at httptest.
	BackendURL string
}

func StripeConfigFrom(cfg config.PaymentConfig) StripeConfig {
	return StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookKey,
		SuccessURL:    cfg.StripeSuccessURL,
		CancelURL:     cfg.StripeCancelURL,
		Currency:      cfg.Currency,
		Timeout:       cfg.Timeout,
	}
}

// StripeService opens Stripe Checkout sessions. The session id is the order code.
type StripeService struct {
	client *client.API
	config StripeConfig
}

func NewStripeService(cfg StripeConfig) (*StripeService, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}

	retries := int64(0)
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: &retries,
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backends := stripe.NewBackendsWithConfig(backendCfg)

	return &StripeService{client: client.New(cfg.SecretKey, backends), config: cfg}, nil
}

func (s *StripeService) Name() string { return "stripe" }

func (s *StripeService) CreateCheckoutSession(ctx context.Context, sr SessionRequest) (*CheckoutSession, error) {
	if sr.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	currency := sr.Currency
	if currency == "" {
		currency = s.config.Currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.config.SuccessURL),
		CancelURL:         stripe.String(s.config.CancelURL),
		ClientReferenceID: stripe.String(sr.MerchantReference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(sr.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(sr.Description),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatUint(uint64(sr.OrderID), 10))

	sess, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe checkout session: %v", ErrUpstream, err)
	}
	return &CheckoutSession{CheckoutURL: sess.URL, OrderCode: sess.ID}, nil
}

func (s *StripeService) CheckStatus(ctx context.Context, orderCode string) (PaymentOutcome, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.client.CheckoutSessions.Get(orderCode, params)
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("%w: stripe session %s: %v", ErrUpstream, orderCode, err)
	}
	return stripeSessionOutcome(sess), nil
}

func (s *StripeService) ParseWebhook(body []byte, header http.Header) (*PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(body, header.Get("Stripe-Signature"), s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if !isCheckoutEvent(event.Type) {
		return &PaymentEvent{Provider: s.Name(), Outcome: OutcomeUnknown, RawStatus: string(event.Type)}, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: checkout session payload: %v", ErrValidation, err)
	}

	outcome := OutcomeUnknown
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome = stripeSessionOutcome(&sess)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome = OutcomePaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		outcome = OutcomeFailed
	}
	return &PaymentEvent{
		Provider:  s.Name(),
		OrderCode: sess.ID,
		Outcome:   outcome,
		RawStatus: string(event.Type),
	}, nil
}

func isCheckoutEvent(t stripe.EventType) bool {
	switch t {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		return true
	}
	return false
}

func stripeSessionOutcome(sess *stripe.CheckoutSession) PaymentOutcome {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return OutcomePaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return OutcomeFailed
	}
	// Open, or complete with an async payment method still settling.
	return OutcomePending
}

// NewCheckoutProvider builds the configured hosted checkout integration.
func NewCheckoutProvider(cfg config.PaymentConfig) (CheckoutProvider, error) {
	switch cfg.Provider {
	case "stripe":
		s, err := NewStripeService(StripeConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "viva", "":
		vs := NewVivaService(VivaConfigFrom(cfg))
		return vs, vs.ValidateConfig()
	}
	return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.Provider)
}
