package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	"github.com/angelmondragon/freshora-backend/pkg/pagination"
)

// OrderView is the read model returned to buyers and sellers.
type OrderView struct {
	ID                 uuid.UUID           `json:"id"`
	BuyerID            uuid.UUID           `json:"buyer_id"`
	Status             enums.OrderStatus   `json:"status"`
	Paid               bool                `json:"paid"`
	PaymentMethod      enums.PaymentMethod `json:"payment_method"`
	TotalAmount        string              `json:"total_amount"`
	GatewayAmount      *string             `json:"gateway_amount,omitempty"`
	Currency           string              `json:"currency"`
	ShippingAddressRef string              `json:"shipping_address_ref"`
	PaymentSessionID   *string             `json:"payment_session_id,omitempty"`
	ContactEmail       *string             `json:"contact_email,omitempty"`
	Lines              []LineView          `json:"lines"`
	CreatedAt          time.Time           `json:"created_at"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
}

type LineView struct {
	ProductRef  string            `json:"product_ref"`
	PriceSource enums.PriceSource `json:"price_source"`
	Name        string            `json:"name"`
	UnitPrice   string            `json:"unit_price"`
	Quantity    int               `json:"quantity"`
	LineTotal   string            `json:"line_total"`
	Image       *string           `json:"image,omitempty"`
	Category    *string           `json:"category,omitempty"`
}

// OrderList is one page of orders, newest first.
type OrderList = pagination.Page[OrderView]

// ToView converts a persisted order into its API shape.
func ToView(order models.Order) OrderView {
	view := OrderView{
		ID:                 order.ID,
		BuyerID:            order.BuyerID,
		Status:             order.Status,
		Paid:               order.Paid,
		PaymentMethod:      order.PaymentMethod,
		TotalAmount:        order.TotalAmount.StringFixed(2),
		Currency:           order.Currency,
		ShippingAddressRef: order.ShippingAddressRef,
		PaymentSessionID:   order.PaymentSessionID,
		ContactEmail:       order.ContactEmail,
		CreatedAt:          order.CreatedAt,
		PaidAt:             order.PaidAt,
		Lines:              make([]LineView, 0, len(order.Lines)),
	}
	if order.GatewayAmount != nil {
		amount := order.GatewayAmount.StringFixed(2)
		view.GatewayAmount = &amount
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, LineView{
			ProductRef:  line.ProductRef,
			PriceSource: line.PriceSource,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice.StringFixed(2),
			Quantity:    line.Quantity,
			LineTotal:   line.LineTotal().StringFixed(2),
			Image:       line.SnapshotImage,
			Category:    line.SnapshotCategory,
		})
	}
	return view
}
