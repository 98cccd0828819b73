package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrWebhookSignature is returned when the webhook payload fails signature verification.
var ErrWebhookSignature = errors.New("payments: invalid webhook signature")

// WebhookNotification is the provider-neutral view of an incoming webhook.
// PaymentID is empty when the event does not concern a payment.
type WebhookNotification struct {
	EventID   string
	EventType string
	PaymentID string
	Reference string
}

// paymentEventTypes lists the Stripe event types that carry a payment intent
// requiring reconciliation. Everything else is acknowledged and ignored.
var paymentEventTypes = map[string]bool{
	"payment_intent.succeeded":      true,
	"payment_intent.payment_failed": true,
	"payment_intent.canceled":       true,
	"charge.refunded":               true,
}

// ParseStripeWebhook verifies the Stripe signature header against the signing
// secret and extracts the payment intent reference from the event payload.
// The account's API version may trail the pinned library version, so version
// mismatches are not treated as errors.
func ParseStripeWebhook(payload []byte, signatureHeader, signingSecret string) (WebhookNotification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookNotification{}, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	notification := WebhookNotification{
		EventID:   event.ID,
		EventType: string(event.Type),
	}
	if !paymentEventTypes[string(event.Type)] {
		return notification, nil
	}

	switch {
	case strings.HasPrefix(string(event.Type), "payment_intent."):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookNotification{}, fmt.Errorf("payments: decode webhook payment intent: %w", err)
		}
		notification.PaymentID = intent.ID
		notification.Reference = intent.Metadata[MetadataOrderKey]
	case strings.HasPrefix(string(event.Type), "charge."):
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return WebhookNotification{}, fmt.Errorf("payments: decode webhook charge: %w", err)
		}
		if charge.PaymentIntent != nil {
			notification.PaymentID = charge.PaymentIntent.ID
		}
		notification.Reference = charge.Metadata[MetadataOrderKey]
	}

	return notification, nil
}
