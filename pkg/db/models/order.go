package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freshora-backend/pkg/enums"
)

// Order is a persisted purchase. Lines are written once with the order and
// never change afterwards.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID            uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	ShippingAddressRef string              `gorm:"column:shipping_address_ref;not null"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentSessionID   *string             `gorm:"column:payment_session_id;uniqueIndex:ux_orders_payment_session_id"`
	Paid               bool                `gorm:"column:paid;not null;default:false"`
	Status             enums.OrderStatus   `gorm:"column:status;type:order_status;not null"`
	TotalAmount        decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	GatewayAmount      *decimal.Decimal    `gorm:"column:gateway_amount;type:numeric(12,2)"`
	Currency           string              `gorm:"column:currency;not null;default:'usd'"`
	ContactEmail       *string             `gorm:"column:contact_email"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	PaymentCheckedAt   *time.Time          `gorm:"column:payment_checked_at"`
	Lines              []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLine is one priced product entry of an order.
type OrderLine struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	Position         int               `gorm:"column:position;not null"`
	ProductRef       string            `gorm:"column:product_ref;not null"`
	PriceSource      enums.PriceSource `gorm:"column:price_source;type:price_source;not null"`
	Name             string            `gorm:"column:name;not null"`
	UnitPrice        decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity         int               `gorm:"column:quantity;not null"`
	SnapshotImage    *string           `gorm:"column:snapshot_image"`
	SnapshotCategory *string           `gorm:"column:snapshot_category"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// LineTotal returns unit price times quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
