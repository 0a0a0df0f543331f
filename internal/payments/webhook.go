package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Outcome classifies what a processor notification means for the order lifecycle.
type Outcome string

const (
	// OutcomePaid means the processor confirmed the charge and the order should settle.
	OutcomePaid Outcome = "paid"
	// OutcomeCanceled means the charge failed or the session expired.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeIgnored means the event carries no lifecycle consequence and is acknowledged as-is.
	OutcomeIgnored Outcome = "ignored"
)

// ErrInvalidSignature is returned when a webhook payload fails signature verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// ProcessorEvent is the normalised form of a PSP webhook notification.
type ProcessorEvent struct {
	ID        string
	Type      string
	Outcome   Outcome
	SessionID string
	IntentID  string
	OrderID   string
	OwnerKey  string
	Amount    int64
	Currency  string
}

// WebhookVerifier verifies raw webhook payloads and normalises them into ProcessorEvents.
type WebhookVerifier interface {
	VerifyAndParse(payload []byte, signature string) (ProcessorEvent, error)
}

// StripeWebhookVerifier checks Stripe-Signature headers against the endpoint secret.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier constructs a verifier for the given endpoint secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: secret}, nil
}

// VerifyAndParse validates the signature and maps the Stripe event onto a ProcessorEvent.
func (v *StripeWebhookVerifier) VerifyAndParse(payload []byte, signature string) (ProcessorEvent, error) {
	if v == nil {
		return ProcessorEvent{}, errors.New("payments: webhook verifier is nil")
	}

	// Stripe rolls the pinned API version with each dashboard upgrade; the
	// fields consumed here are stable across versions.
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return ProcessorEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	normalized := ProcessorEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Outcome: OutcomeIgnored,
	}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return ProcessorEvent{}, fmt.Errorf("payments: decode checkout session event: %w", err)
		}
		normalized.SessionID = session.ID
		normalized.Amount = session.AmountTotal
		normalized.Currency = strings.ToUpper(string(session.Currency))
		if session.PaymentIntent != nil {
			normalized.IntentID = session.PaymentIntent.ID
		}
		if session.Metadata != nil {
			normalized.OrderID = session.Metadata["orderId"]
			normalized.OwnerKey = session.Metadata["ownerKey"]
		}

		switch event.Type {
		case "checkout.session.completed":
			// Async methods (pix, boleto) complete before the charge settles;
			// those sessions report payment_status=unpaid and settle later.
			if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
				normalized.Outcome = OutcomePaid
			}
		case "checkout.session.async_payment_succeeded":
			normalized.Outcome = OutcomePaid
		case "checkout.session.async_payment_failed", "checkout.session.expired":
			normalized.Outcome = OutcomeCanceled
		}
	}

	return normalized, nil
}
