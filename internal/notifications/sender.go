package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
)

// OrderConfirmation is the content of the buyer's confirmation email.
type OrderConfirmation struct {
	Email         string
	OrderID       string
	TotalAmount   string
	Currency      string
	PaymentMethod string
}

// Sender delivers order confirmations.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error
}

// NewSender returns a SendGrid sender when an API key is configured and a
// log-only sender otherwise.
func NewSender(cfg config.SendgridConfig, logg *logger.Logger) Sender {
	if cfg.APIKey == "" {
		return NewLogSender(logg)
	}
	return NewSendgridSender(cfg)
}

func subjectFor(msg OrderConfirmation) string {
	return fmt.Sprintf("Your Freshora order %s is confirmed", shortID(msg.OrderID))
}

func bodyFor(msg OrderConfirmation) (string, string) {
	plain := fmt.Sprintf(
		"Thanks for your order!\n\nOrder: %s\nTotal: %s %s\nPayment: %s\n",
		msg.OrderID, msg.TotalAmount, msg.Currency, msg.PaymentMethod,
	)
	html := fmt.Sprintf(
		"<p>Thanks for your order!</p><p>Order: <strong>%s</strong><br>Total: %s %s<br>Payment: %s</p>",
		msg.OrderID, msg.TotalAmount, msg.Currency, msg.PaymentMethod,
	)
	return plain, html
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// LogSender writes confirmations to the log instead of sending them.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": msg.OrderID,
		"to":       msg.Email,
		"subject":  subjectFor(msg),
	})
	s.logg.Info(ctx, "order confirmation email skipped (sendgrid not configured)")
	return nil
}
