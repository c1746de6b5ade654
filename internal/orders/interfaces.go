package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	"github.com/angelmondragon/freshora-backend/pkg/pagination"
)

// Repository is the order ledger. It is the only writer of the orders and
// order_lines tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	AttachSessionID(ctx context.Context, id uuid.UUID, sessionID string) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, sessionID string, paidAt time.Time) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.Order, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	MarkPaymentChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// ListQuery selects a newest-first page of orders.
type ListQuery struct {
	BuyerID       *uuid.UUID
	Status        *enums.OrderStatus
	PaymentMethod *enums.PaymentMethod
	Cursor        *pagination.Cursor
	Limit         int
}

// Filters are the optional listing filters exposed to callers.
type Filters struct {
	Status        *enums.OrderStatus
	PaymentMethod *enums.PaymentMethod
}
