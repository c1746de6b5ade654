package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshora-backend/internal/checkout"
	"github.com/angelmondragon/freshora-backend/internal/notifications"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/internal/pricing"
	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/metrics"
	"github.com/angelmondragon/freshora-backend/pkg/outbox"
	"github.com/angelmondragon/freshora-backend/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

type eventVerifier interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lineResolver interface {
	ResolveAll(ctx context.Context, lines []pricing.Line) ([]pricing.ResolvedLine, error)
}

type confirmationDispatcher interface {
	Dispatch(ctx context.Context, msg notifications.OrderConfirmation)
}

type ReconcilerParams struct {
	Verifier eventVerifier
	Guard    eventGuard
	TxRunner txRunner
	Orders   orders.Repository
	Resolver lineResolver
	Outbox   outbox.Emitter
	Notifier confirmationDispatcher
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Currency string
}

// Reconciler applies payment confirmations from Stripe to the order ledger.
type Reconciler struct {
	verifier eventVerifier
	guard    eventGuard
	tx       txRunner
	orders   orders.Repository
	resolver lineResolver
	outbox   outbox.Emitter
	notifier confirmationDispatcher
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
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
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Reconciler{
		verifier: params.Verifier,
		guard:    params.Guard,
		tx:       params.TxRunner,
		orders:   params.Orders,
		resolver: params.Resolver,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Handle verifies and applies one webhook delivery. Only signature failures
// are returned; every verified delivery is acknowledged. A ledger fault is
// logged and the event guard released, leaving the order pending for a
// redelivery or the pending-payment sweep.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return r.reject(ctx, errors.New("signature header missing"))
	}
	event, err := r.verifier.ConstructEvent(payload, signature)
	if err != nil {
		return r.reject(ctx, err)
	}
	ctx = r.withFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	if r.guard != nil && event.ID != "" {
		seen, err := r.guard.CheckAndMark(ctx, event.ID)
		switch {
		case err != nil:
			r.warn(ctx, "webhook event guard unavailable: "+err.Error())
		case seen:
			r.metrics.IncWebhook(metrics.WebhookOutcomeDuplicate)
			r.info(ctx, "stripe event already processed")
			return nil
		}
	}

	outcome, err := r.process(ctx, &event)
	if err != nil {
		r.metrics.IncWebhook(metrics.WebhookOutcomeFailed)
		r.error(ctx, "stripe event not applied", err)
		if r.guard != nil && event.ID != "" {
			if relErr := r.guard.Release(ctx, event.ID); relErr != nil {
				r.warn(ctx, "release webhook event guard: "+relErr.Error())
			}
		}
		return nil
	}
	r.metrics.IncWebhook(outcome)
	r.info(ctx, "stripe event handled: "+outcome)
	return nil
}

func (r *Reconciler) process(ctx context.Context, event *stripe.Event) (string, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return metrics.WebhookOutcomeIgnored, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		r.warn(ctx, "checkout event carries no session")
		return metrics.WebhookOutcomeIgnored, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		r.warn(ctx, "decode checkout session: "+err.Error())
		return metrics.WebhookOutcomeIgnored, nil
	}
	sess := pkgstripe.SessionFromStripe(&cs)
	if !sess.Paid() {
		return metrics.WebhookOutcomeIgnored, nil
	}
	return r.ApplyPayment(ctx, sess, payloads.PaidSourceWebhook)
}

// ApplyPayment records a confirmed payment for the session's order. A matched
// pending order moves to placed exactly once; a session with no matching
// order is rebuilt from its metadata as an already paid order. Only failures
// on a matched order are returned, as DEPENDENCY_ERROR.
func (r *Reconciler) ApplyPayment(ctx context.Context, sess *pkgstripe.Session, source string) (string, error) {
	if sess == nil || sess.ID == "" {
		return metrics.WebhookOutcomeIgnored, nil
	}
	ctx = r.withFields(ctx, map[string]any{"stripe_session_id": sess.ID})

	order, err := r.findOrder(ctx, sess)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for payment")
	}
	if order == nil {
		outcome, err := r.createFromSession(ctx, sess)
		if err != nil {
			r.error(ctx, "fallback order creation failed", err)
			return metrics.WebhookOutcomeFailed, nil
		}
		return outcome, nil
	}
	ctx = r.withOrderID(ctx, order.ID)
	r.checkAmount(ctx, order, sess)

	paidAt := r.now()
	transitioned := false
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := r.orders.WithTx(tx).MarkPaid(ctx, order.ID, sess.ID, paidAt)
		if err != nil || !changed {
			return err
		}
		transitioned = true
		return r.outbox.Emit(ctx, tx, orders.PaidEvent(order, sess.ID, paidAt, source))
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !transitioned {
		return metrics.WebhookOutcomeAlreadyPaid, nil
	}

	r.notify(ctx, order, sess)
	return metrics.WebhookOutcomeTransitioned, nil
}

func (r *Reconciler) findOrder(ctx context.Context, sess *pkgstripe.Session) (*models.Order, error) {
	if raw := sess.OrderID(); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			order, err := r.orders.FindByID(ctx, id)
			switch {
			case err == nil:
				return order, nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return nil, err
			}
		}
	}
	order, err := r.orders.FindBySessionID(ctx, sess.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// createFromSession rebuilds a paid order from session metadata when no
// ledger row matches the session.
func (r *Reconciler) createFromSession(ctx context.Context, sess *pkgstripe.Session) (string, error) {
	r.warn(ctx, "no order matches paid session; rebuilding from metadata")

	buyerID, err := uuid.Parse(strings.TrimSpace(sess.Metadata[pkgstripe.MetadataUserID]))
	if err != nil {
		return "", fmt.Errorf("session metadata has no valid user id: %w", err)
	}
	lines, err := checkout.DecodeItems(sess.Metadata[pkgstripe.MetadataItems])
	if err != nil {
		return "", fmt.Errorf("decode session items: %w", err)
	}
	if len(lines) == 0 {
		return "", errors.New("session metadata has no items")
	}
	resolved, err := r.resolver.ResolveAll(ctx, lines)
	if err != nil {
		return "", fmt.Errorf("re-price session items: %w", err)
	}

	paidAt := r.now()
	order := orders.Build(orders.Draft{
		BuyerID:      buyerID,
		AddressRef:   sess.Metadata[pkgstripe.MetadataAddressID],
		Method:       enums.PaymentMethodCard,
		ContactEmail: sess.CustomerEmail,
		Currency:     r.currency,
		Lines:        resolved,
		SessionID:    sess.ID,
		Paid:         true,
		PaidAt:       paidAt,
	})
	if strings.TrimSpace(order.ShippingAddressRef) == "" {
		return "", errors.New("session metadata has no address")
	}

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := r.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := r.outbox.Emit(ctx, tx, orders.CreatedEvent(order, orders.SystemActorRole)); err != nil {
			return err
		}
		return r.outbox.Emit(ctx, tx, orders.PaidEvent(order, sess.ID, paidAt, payloads.PaidSourceFallback))
	})
	if err != nil {
		if orders.IsDuplicateSession(err) {
			return metrics.WebhookOutcomeAlreadyPaid, nil
		}
		return "", err
	}

	r.metrics.IncOrderCreated(string(order.PaymentMethod), string(order.Status))
	r.notify(r.withOrderID(ctx, order.ID), order, sess)
	return metrics.WebhookOutcomeFallback, nil
}

func (r *Reconciler) checkAmount(ctx context.Context, order *models.Order, sess *pkgstripe.Session) {
	if order.GatewayAmount == nil || sess.AmountTotal == 0 {
		return
	}
	if expected := pricing.ToCents(*order.GatewayAmount); expected != sess.AmountTotal {
		r.warn(ctx, fmt.Sprintf("session amount %d differs from recorded gateway amount %d", sess.AmountTotal, expected))
	}
}

func (r *Reconciler) notify(ctx context.Context, order *models.Order, sess *pkgstripe.Session) {
	if r.notifier == nil {
		return
	}
	email := sess.CustomerEmail
	if order.ContactEmail != nil && *order.ContactEmail != "" {
		email = *order.ContactEmail
	}
	if email == "" {
		return
	}
	r.notifier.Dispatch(ctx, notifications.OrderConfirmation{
		Email:         email,
		OrderID:       order.ID.String(),
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
		PaymentMethod: string(order.PaymentMethod),
	})
}

func (r *Reconciler) reject(ctx context.Context, cause error) error {
	r.metrics.IncWebhook(metrics.WebhookOutcomeRejected)
	r.warn(ctx, "stripe webhook signature rejected: "+cause.Error())
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "invalid webhook signature").
		WithReason(pkgerrors.ReasonSignatureInvalid)
}

func (r *Reconciler) withFields(ctx context.Context, fields map[string]any) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithFields(ctx, fields)
}

func (r *Reconciler) withOrderID(ctx context.Context, id uuid.UUID) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithOrderID(ctx, id.String())
}

func (r *Reconciler) info(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Info(ctx, msg)
	}
}

func (r *Reconciler) warn(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Warn(ctx, msg)
	}
}

func (r *Reconciler) error(ctx context.Context, msg string, err error) {
	if r.logg != nil {
		r.logg.Error(ctx, msg, err)
	}
}
