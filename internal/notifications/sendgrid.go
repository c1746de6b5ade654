package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/freshora-backend/pkg/config"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender delivers confirmations through the SendGrid v3 mail API.
type SendgridSender struct {
	client   mailClient
	from     string
	fromName string
}

func NewSendgridSender(cfg config.SendgridConfig) *SendgridSender {
	return &SendgridSender{
		client:   sendgrid.NewSendClient(cfg.APIKey),
		from:     cfg.DefaultFrom,
		fromName: cfg.FromName,
	}
}

func (s *SendgridSender) SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	if msg.Email == "" {
		return errors.New("recipient email required")
	}
	plain, html := bodyFor(msg)
	email := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		subjectFor(msg),
		mail.NewEmail("", msg.Email),
		plain,
		html,
	)
	email.SetHeader("X-Freshora-Order", msg.OrderID)

	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
