package stripe

import (
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// ConstructEvent verifies the signature header against the raw payload and
// decodes the event. Events pinned to another API version are still accepted.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errors.New("stripe signing secret not configured")
	}
	return webhook.ConstructEventWithOptions(payload, header, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// NewWebhookVerifier builds a verification-only client. It never calls Stripe.
func NewWebhookVerifier(signingSecret string) *Client {
	return &Client{signingSecret: signingSecret, currency: defaultCurrency}
}
