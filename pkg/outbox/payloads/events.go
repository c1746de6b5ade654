package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted when an order row is first written, whatever
// its payment method.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	Paid          bool      `json:"paid"`
	TotalAmount   string    `json:"total_amount"`
	Currency      string    `json:"currency"`
	LineCount     int       `json:"line_count"`
}

// OrderPaidEvent is emitted once per order when card payment is confirmed.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	PaymentSessionID string    `json:"payment_session_id"`
	TotalAmount      string    `json:"total_amount"`
	PaidAt           time.Time `json:"paid_at"`
	Source           string    `json:"source"`
}

// Sources of an OrderPaidEvent.
const (
	PaidSourceWebhook  = "webhook"
	PaidSourceFallback = "webhook_fallback"
	PaidSourceSweep    = "pending_payment_sweep"
)
