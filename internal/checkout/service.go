package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshora-backend/internal/notifications"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/internal/pricing"
	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
	"github.com/angelmondragon/freshora-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

const (
	successPath = "/loader?next=my-orders"
	cancelPath  = "/cart"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lineResolver interface {
	ResolveAll(ctx context.Context, lines []pricing.Line) ([]pricing.ResolvedLine, error)
}

type paymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.Session, error)
}

type confirmationDispatcher interface {
	Dispatch(ctx context.Context, msg notifications.OrderConfirmation)
}

// Service places orders.
type Service interface {
	PlaceCOD(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	PlaceCard(ctx context.Context, input PlaceOrderInput) (*CardCheckout, error)
}

// PlaceOrderInput is a validated checkout request.
type PlaceOrderInput struct {
	BuyerID      uuid.UUID
	Lines        []pricing.Line
	AddressRef   string
	ContactEmail string
	// Origin is the storefront origin the request came from; used for
	// redirect URLs when it is an allowed origin.
	Origin string
}

// CardCheckout is the outcome of a card checkout: a pending order and the
// hosted payment page to send the buyer to.
type CardCheckout struct {
	Order       *models.Order
	SessionID   string
	RedirectURL string
}

type ServiceParams struct {
	TxRunner   txRunner
	Orders     orders.Repository
	Resolver   lineResolver
	Outbox     outbox.Emitter
	Gateway    paymentGateway
	Notifier   confirmationDispatcher
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Storefront config.StorefrontConfig
	Currency   string
}

type service struct {
	tx         txRunner
	orders     orders.Repository
	resolver   lineResolver
	outbox     outbox.Emitter
	gateway    paymentGateway
	notifier   confirmationDispatcher
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	storefront config.StorefrontConfig
	currency   string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing resolver required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		tx:         params.TxRunner,
		orders:     params.Orders,
		resolver:   params.Resolver,
		outbox:     params.Outbox,
		gateway:    params.Gateway,
		notifier:   params.Notifier,
		metrics:    params.Metrics,
		logg:       params.Logger,
		storefront: params.Storefront,
		currency:   currency,
	}, nil
}

// PlaceCOD records a paid, placed order and queues the confirmation email.
func (s *service) PlaceCOD(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	lines, err := s.resolver.ResolveAll(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	order := orders.Build(orders.Draft{
		BuyerID:      input.BuyerID,
		AddressRef:   input.AddressRef,
		Method:       enums.PaymentMethodCOD,
		ContactEmail: input.ContactEmail,
		Currency:     s.currency,
		Lines:        lines,
	})
	if err := s.persist(ctx, order); err != nil {
		return nil, err
	}
	s.metrics.IncOrderCreated(string(order.PaymentMethod), string(order.Status))
	s.notify(ctx, order)
	return order, nil
}

// PlaceCard writes a pending order, then opens a hosted checkout session for
// it. The order stays pending until the gateway confirms payment.
func (s *service) PlaceCard(ctx context.Context, input PlaceOrderInput) (*CardCheckout, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments are not configured").
			WithReason(pkgerrors.ReasonGatewayUnavailable)
	}
	lines, err := s.resolver.ResolveAll(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	order := orders.Build(orders.Draft{
		BuyerID:      input.BuyerID,
		AddressRef:   input.AddressRef,
		Method:       enums.PaymentMethodCard,
		ContactEmail: input.ContactEmail,
		Currency:     s.currency,
		Lines:        lines,
	})
	if err := s.persist(ctx, order); err != nil {
		return nil, err
	}
	s.metrics.IncOrderCreated(string(order.PaymentMethod), string(order.Status))

	req, err := s.sessionRequest(ctx, order, lines, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build checkout session")
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.metrics.IncGatewayError()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable").
			WithReason(pkgerrors.ReasonGatewayUnavailable).
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}

	attached, err := s.orders.AttachSessionID(ctx, order.ID, session.ID)
	switch {
	case err != nil:
		s.warn(ctx, order.ID, "record payment session failed: "+err.Error())
	case !attached:
		s.warn(ctx, order.ID, "order already carries a payment session")
	default:
		sid := session.ID
		order.PaymentSessionID = &sid
	}

	return &CardCheckout{Order: order, SessionID: session.ID, RedirectURL: session.URL}, nil
}

func (s *service) persist(ctx context.Context, order *models.Order) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.outbox.Emit(ctx, tx, orders.CreatedEvent(order, string(enums.RoleBuyer))); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order_created")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return err
	}
	return nil
}

func (s *service) sessionRequest(ctx context.Context, order *models.Order, lines []pricing.ResolvedLine, input PlaceOrderInput) (pkgstripe.CheckoutSessionRequest, error) {
	items := make([]pkgstripe.CheckoutLineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, pkgstripe.CheckoutLineItem{
			Name:           line.Name,
			UnitAmountCent: pricing.ToCents(pricing.GatewayUnitPrice(line.UnitPrice)),
			Quantity:       int64(line.Quantity),
		})
	}
	encoded, err := EncodeItems(lines)
	if err != nil {
		return pkgstripe.CheckoutSessionRequest{}, err
	}

	base := s.redirectBase(input.Origin)
	req := pkgstripe.CheckoutSessionRequest{
		OrderID:    order.ID.String(),
		SuccessURL: base + successPath,
		CancelURL:  base + cancelPath,
		LineItems:  items,
		Metadata: map[string]string{
			pkgstripe.MetadataUserID:    input.BuyerID.String(),
			pkgstripe.MetadataAddressID: order.ShippingAddressRef,
		},
	}
	if len(encoded) > pkgstripe.MaxMetadataValueLen {
		s.warn(ctx, order.ID, fmt.Sprintf("cart items (%d bytes) exceed session metadata limit; order cannot be rebuilt from the session", len(encoded)))
	} else {
		req.Metadata[pkgstripe.MetadataItems] = encoded
	}
	if order.ContactEmail != nil {
		req.CustomerEmail = *order.ContactEmail
	}
	return req, nil
}

// redirectBase prefers the request origin when it is an allowed storefront
// origin and falls back to the configured storefront URL.
func (s *service) redirectBase(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Scheme != "" && u.Host != "" {
			for _, allowed := range s.storefront.AllowedOrigins {
				if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
					return origin
				}
			}
		}
	}
	return strings.TrimRight(s.storefront.BaseURL, "/")
}

func (s *service) notify(ctx context.Context, order *models.Order) {
	if s.notifier == nil || order.ContactEmail == nil {
		return
	}
	s.notifier.Dispatch(ctx, notifications.OrderConfirmation{
		Email:         *order.ContactEmail,
		OrderID:       order.ID.String(),
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
		PaymentMethod: string(order.PaymentMethod),
	})
}

func (s *service) warn(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

func validateInput(input PlaceOrderInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").WithReason(pkgerrors.ReasonInvalidInput)
	}
	if strings.TrimSpace(input.AddressRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required").WithReason(pkgerrors.ReasonInvalidInput)
	}
	return nil
}
