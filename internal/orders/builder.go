package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshora-backend/internal/pricing"
	"github.com/angelmondragon/freshora-backend/pkg/db"
	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	"github.com/angelmondragon/freshora-backend/pkg/outbox"
	"github.com/angelmondragon/freshora-backend/pkg/outbox/payloads"
)

// SystemActorRole is recorded on events produced without a user request.
const SystemActorRole = "system"

// Draft carries everything needed to build a new order from priced lines.
type Draft struct {
	BuyerID      uuid.UUID
	AddressRef   string
	Method       enums.PaymentMethod
	ContactEmail string
	Currency     string
	Lines        []pricing.ResolvedLine
	// SessionID and Paid are only set when a confirmed payment creates the order.
	SessionID string
	Paid      bool
	PaidAt    time.Time
}

// Build turns a draft into an unsaved order. COD orders are always paid and
// placed; card orders stay pending unless the draft says otherwise.
func Build(d Draft) *models.Order {
	order := &models.Order{
		ID:                 uuid.New(),
		BuyerID:            d.BuyerID,
		ShippingAddressRef: strings.TrimSpace(d.AddressRef),
		PaymentMethod:      d.Method,
		TotalAmount:        pricing.OrderTotal(d.Lines),
		Currency:           d.Currency,
		Status:             enums.OrderStatusPaymentPending,
		Lines:              make([]models.OrderLine, 0, len(d.Lines)),
	}
	if order.Currency == "" {
		order.Currency = "usd"
	}
	if email := strings.TrimSpace(d.ContactEmail); email != "" {
		order.ContactEmail = &email
	}

	switch {
	case d.Method == enums.PaymentMethodCOD:
		order.Paid = true
		order.Status = enums.OrderStatusPlaced
	case d.Paid:
		order.Paid = true
		order.Status = enums.OrderStatusPlaced
		paidAt := d.PaidAt.UTC()
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		order.PaidAt = &paidAt
	}
	if d.Method == enums.PaymentMethodCard {
		gateway := pricing.GatewayAmount(d.Lines)
		order.GatewayAmount = &gateway
		if d.SessionID != "" {
			sid := d.SessionID
			order.PaymentSessionID = &sid
		}
	}

	for _, line := range d.Lines {
		row := models.OrderLine{
			ProductRef:  line.ProductRef,
			PriceSource: line.Source,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
		}
		if line.Source == enums.PriceSourceSnapshot {
			row.SnapshotImage = optional(line.Image)
			row.SnapshotCategory = optional(line.Category)
		}
		order.Lines = append(order.Lines, row)
	}
	return order
}

// CreatedEvent is the outbox event written alongside a new order.
func CreatedEvent(order *models.Order, actorRole string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: actorRole},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			BuyerID:       order.BuyerID,
			PaymentMethod: string(order.PaymentMethod),
			Status:        string(order.Status),
			Paid:          order.Paid,
			TotalAmount:   order.TotalAmount.StringFixed(2),
			Currency:      order.Currency,
			LineCount:     len(order.Lines),
		},
	}
}

// PaidEvent is the outbox event written with the pending to placed transition.
func PaidEvent(order *models.Order, sessionID string, paidAt time.Time, source string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: SystemActorRole},
		OccurredAt:    paidAt.UTC(),
		Data: payloads.OrderPaidEvent{
			OrderID:          order.ID,
			BuyerID:          order.BuyerID,
			PaymentSessionID: sessionID,
			TotalAmount:      order.TotalAmount.StringFixed(2),
			PaidAt:           paidAt.UTC(),
			Source:           source,
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SessionIDConstraint is the unique index that lets a payment session back at most one order.
const SessionIDConstraint = "ux_orders_payment_session_id"

// IsDuplicateSession reports whether err is the unique violation raised when
// a second order claims a payment session that is already in use.
func IsDuplicateSession(err error) bool {
	return db.IsUniqueViolation(err, SessionIDConstraint) ||
		db.IsUniqueViolation(err, "orders.payment_session_id")
}
