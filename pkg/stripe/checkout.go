package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

const (
	defaultCurrency = "usd"

	// Stripe rejects metadata values longer than this.
	MaxMetadataValueLen = 500

	MetadataOrderID   = "orderId"
	MetadataUserID    = "userId"
	MetadataAddressID = "addressId"
	MetadataItems     = "items"
)

// CheckoutLineItem is one priced line submitted to the hosted checkout page.
type CheckoutLineItem struct {
	Name           string
	UnitAmountCent int64
	Quantity       int64
}

// CheckoutSessionRequest describes a hosted checkout session for one order.
type CheckoutSessionRequest struct {
	OrderID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	LineItems     []CheckoutLineItem
	Metadata      map[string]string
}

// Session is the subset of a Stripe checkout session the order core reads.
type Session struct {
	ID                string
	URL               string
	PaymentStatus     string
	ClientReferenceID string
	AmountTotal       int64
	CustomerEmail     string
	Metadata          map[string]string
}

// Paid reports whether Stripe considers the session settled.
func (s *Session) Paid() bool {
	if s == nil {
		return false
	}
	status := stripe.CheckoutSessionPaymentStatus(s.PaymentStatus)
	return status == stripe.CheckoutSessionPaymentStatusPaid ||
		status == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// OrderID returns the order id carried by the session, preferring metadata.
func (s *Session) OrderID() string {
	if s == nil {
		return ""
	}
	if id := strings.TrimSpace(s.Metadata[MetadataOrderID]); id != "" {
		return id
	}
	return strings.TrimSpace(s.ClientReferenceID)
}

// SessionFromStripe converts a decoded Stripe object.
func SessionFromStripe(cs *stripe.CheckoutSession) *Session {
	if cs == nil {
		return nil
	}
	sess := &Session{
		ID:                cs.ID,
		URL:               cs.URL,
		PaymentStatus:     string(cs.PaymentStatus),
		ClientReferenceID: cs.ClientReferenceID,
		AmountTotal:       cs.AmountTotal,
		CustomerEmail:     cs.CustomerEmail,
		Metadata:          cs.Metadata,
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		sess.CustomerEmail = cs.CustomerDetails.Email
	}
	return sess
}

type sessionBackend interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// CreateCheckoutSession opens a card-only payment session for the order.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*Session, error) {
	if c == nil || c.sessions == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params, err := c.buildSessionParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	cs, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if cs.URL == "" {
		return nil, fmt.Errorf("checkout session %s has no redirect url", cs.ID)
	}
	return SessionFromStripe(cs), nil
}

// RetrieveSession fetches the current state of a checkout session.
func (c *Client) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	if c == nil || c.sessions == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := c.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session %s: %w", id, err)
	}
	return SessionFromStripe(cs), nil
}

func (c *Client) buildSessionParams(req CheckoutSessionRequest) (*stripe.CheckoutSessionParams, error) {
	if req.OrderID == "" {
		return nil, errors.New("order id is required")
	}
	if len(req.LineItems) == 0 {
		return nil, errors.New("at least one line item is required")
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, errors.New("success and cancel urls are required")
	}

	currency := c.Currency()
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for i, item := range req.LineItems {
		if item.UnitAmountCent <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("line item %d has a non-positive amount or quantity", i)
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmountCent),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.OrderID),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(MetadataOrderID, req.OrderID)
	for key, value := range req.Metadata {
		if value == "" || len(value) > MaxMetadataValueLen {
			continue
		}
		params.AddMetadata(key, value)
	}
	return params, nil
}
