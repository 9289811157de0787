package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yeremiapane/restaurant-orders/config"
)

const vivaTokenSkew = 30 * time.Second

// Viva order StateId values.
const (
	vivaStatePending   = 0
	vivaStateExpired   = 1
	vivaStateCancelled = 2
	vivaStatePaid      = 3
)

type VivaConfig struct {
	ClientID     string
	ClientSecret string
	AccountsURL  string
	APIURL       string
	CheckoutURL  string
	SourceCode   string
	WebhookKey   string
	Timeout      time.Duration
}

func VivaConfigFrom(cfg config.PaymentConfig) VivaConfig {
	return VivaConfig{
		ClientID:     cfg.VivaClientID,
		ClientSecret: cfg.VivaClientSecret,
		AccountsURL:  strings.TrimRight(cfg.VivaAccountsURL, "/"),
		APIURL:       strings.TrimRight(cfg.VivaAPIURL, "/"),
		CheckoutURL:  strings.TrimRight(cfg.VivaCheckoutURL, "/"),
		SourceCode:   cfg.VivaSourceCode,
		WebhookKey:   cfg.VivaWebhookKey,
		Timeout:      cfg.Timeout,
	}
}

// VivaService talks to Viva Wallet's Smart Checkout API.
type VivaService struct {
	config     VivaConfig
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

func NewVivaService(cfg VivaConfig) *VivaService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &VivaService{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

func (vs *VivaService) Name() string { return "viva" }

func (vs *VivaService) ValidateConfig() error {
	if vs.config.ClientID == "" {
		return fmt.Errorf("VIVA_CLIENT_ID is not set")
	}
	if vs.config.ClientSecret == "" {
		return fmt.Errorf("VIVA_CLIENT_SECRET is not set")
	}
	if vs.config.AccountsURL == "" || vs.config.APIURL == "" || vs.config.CheckoutURL == "" {
		return fmt.Errorf("viva endpoints are not configured")
	}
	return nil
}

// WebhookKey is returned on the provider's GET verification request.
func (vs *VivaService) WebhookKey() string {
	return vs.config.WebhookKey
}

func (vs *VivaService) accessToken(ctx context.Context) (string, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.token != "" && vs.now().Before(vs.tokenExpiry) {
		return vs.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "vivaWalletApi")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vs.config.AccountsURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: building token request: %v", ErrUpstream, err)
	}
	req.SetBasicAuth(vs.config.ClientID, vs.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := vs.do(req, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no access_token", ErrUpstream)
	}

	vs.token = tokenResp.AccessToken
	ttl := time.Duration(tokenResp.ExpiresIn)*time.Second - vivaTokenSkew
	if ttl < 0 {
		ttl = 0
	}
	vs.tokenExpiry = vs.now().Add(ttl)
	return vs.token, nil
}

func (vs *VivaService) CreateCheckoutSession(ctx context.Context, sr SessionRequest) (*CheckoutSession, error) {
	if sr.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	token, err := vs.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"amount":       sr.AmountMinor,
		"customerTrns": sr.Description,
		"merchantTrns": sr.MerchantReference,
	}
	if vs.config.SourceCode != "" {
		payload["sourceCode"] = vs.config.SourceCode
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vs.config.APIURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building order request: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var orderResp struct {
		OrderCode flexString `json:"orderCode"`
	}
	if err := vs.do(req, &orderResp); err != nil {
		return nil, err
	}
	if orderResp.OrderCode == "" {
		return nil, fmt.Errorf("%w: order response has no orderCode", ErrUpstream)
	}

	code := string(orderResp.OrderCode)
	return &CheckoutSession{
		CheckoutURL: fmt.Sprintf("%s/web/checkout?ref=%s", vs.config.CheckoutURL, url.QueryEscape(code)),
		OrderCode:   code,
	}, nil
}

func (vs *VivaService) CheckStatus(ctx context.Context, orderCode string) (PaymentOutcome, error) {
	token, err := vs.accessToken(ctx)
	if err != nil {
		return OutcomeUnknown, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vs.config.APIURL+"/api/orders/"+url.PathEscape(orderCode), nil)
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("%w: building status request: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var statusResp struct {
		StateID int `json:"StateId"`
	}
	if err := vs.do(req, &statusResp); err != nil {
		return OutcomeUnknown, err
	}
	return mapVivaState(statusResp.StateID), nil
}

func (vs *VivaService) ParseWebhook(body []byte, _ http.Header) (*PaymentEvent, error) {
	return ParseProviderWebhook(vs.Name(), body)
}

// do sends the request and decodes a 2xx JSON body into out.
func (vs *VivaService) do(req *http.Request, out interface{}) error {
	resp, err := vs.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUpstream, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	return nil
}

func mapVivaState(state int) PaymentOutcome {
	switch state {
	case vivaStatePaid:
		return OutcomePaid
	case vivaStateExpired, vivaStateCancelled:
		return OutcomeFailed
	case vivaStatePending:
		return OutcomePending
	}
	return OutcomeUnknown
}
