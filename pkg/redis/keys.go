package redis

import "strings"

// Every key lives under the "fr" namespace, then a purpose segment.
const (
	keyNamespace      = "fr"
	idempotencyPrefix = "idempotency"
	webhookPrefix     = "webhook_event"
	lockPrefix        = "lock"
)

func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencyPrefix, scope, id)
}

// WebhookEventKey marks a payment-provider event as handled.
func (c *Client) WebhookEventKey(provider, eventID string) string {
	return joinKey(webhookPrefix, provider, eventID)
}

func (c *Client) LockKey(name string) string {
	return joinKey(lockPrefix, name)
}

// joinKey drops blank segments so a missing scope does not leave "::".
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
