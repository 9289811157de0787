package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Viva event types that carry a payment result.
const (
	vivaEventPaymentCreated = 1796
	vivaEventPaymentFailed  = 1798
)

// flexString accepts a JSON string or number. Viva sends order codes as
// 16 digit numbers, which do not survive float64.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("order code %s is not an integer", n)
	}
	*f = flexString(n.String())
	return nil
}

type flatWebhook struct {
	OrderCode flexString `json:"orderCode"`
	Status    string     `json:"status"`
}

type vivaWebhook struct {
	EventTypeID int `json:"EventTypeId"`
	EventData   *struct {
		OrderCode flexString `json:"OrderCode"`
		StatusID  string     `json:"StatusId"`
	} `json:"EventData"`
}

// ParseProviderWebhook accepts both the flat {orderCode, status} payload and
// Viva's native {EventTypeId, EventData} envelope.
func ParseProviderWebhook(provider string, body []byte) (*PaymentEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: webhook body is not a JSON object", ErrValidation)
	}

	var native vivaWebhook
	if err := json.Unmarshal(body, &native); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if native.EventData != nil {
		code := string(native.EventData.OrderCode)
		if code == "" {
			return nil, fmt.Errorf("%w: EventData.OrderCode is missing", ErrValidation)
		}
		outcome := vivaStatusOutcome(native.EventData.StatusID)
		if native.EventTypeID == vivaEventPaymentFailed {
			outcome = OutcomeFailed
		}
		return &PaymentEvent{
			Provider:  provider,
			OrderCode: code,
			Outcome:   outcome,
			RawStatus: native.EventData.StatusID,
		}, nil
	}

	var flat flatWebhook
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if flat.OrderCode == "" {
		return nil, fmt.Errorf("%w: orderCode is missing", ErrValidation)
	}
	return &PaymentEvent{
		Provider:  provider,
		OrderCode: string(flat.OrderCode),
		Outcome:   flatStatusOutcome(flat.Status),
		RawStatus: flat.Status,
	}, nil
}

func flatStatusOutcome(status string) PaymentOutcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "success", "succeeded", "completed", "f":
		return OutcomePaid
	case "failed", "failure", "cancelled", "canceled", "expired", "declined", "e", "x":
		return OutcomeFailed
	case "pending", "a":
		return OutcomePending
	}
	return OutcomeUnknown
}

// vivaStatusOutcome maps Viva transaction StatusId codes.
func vivaStatusOutcome(statusID string) PaymentOutcome {
	switch strings.ToUpper(strings.TrimSpace(statusID)) {
	case "F":
		return OutcomePaid
	case "E", "X", "M", "MW", "MA", "MS":
		return OutcomeFailed
	case "A":
		return OutcomePending
	}
	return OutcomeUnknown
}
