package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
)

var errSessionIDRequired = errors.New("payment session id required")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order and its lines. Run it inside a transaction so the
// two inserts commit together.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(order.Lines) == 0 {
		return nil
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.OrderID = order.ID
		line.Position = i
		line.CreatedAt = order.CreatedAt
	}
	return db.Create(&order.Lines).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, errSessionIDRequired
	}
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("payment_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// AttachSessionID records the gateway session on an order that has none yet.
// It reports whether a row changed.
func (r *repository) AttachSessionID(ctx context.Context, id uuid.UUID, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, errSessionIDRequired
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_session_id IS NULL", id).
		Updates(map[string]any{
			"payment_session_id": sessionID,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkPaid moves a pending order to placed. The status predicate makes the
// update a compare-and-set: of any number of concurrent callers exactly one
// sees true.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, sessionID string, paidAt time.Time) (bool, error) {
	updates := map[string]any{
		"paid":       true,
		"status":     enums.OrderStatusPlaced,
		"paid_at":    paidAt.UTC(),
		"updated_at": time.Now().UTC(),
	}
	if sessionID != "" {
		updates["payment_session_id"] = gorm.Expr("COALESCE(payment_session_id, ?)", sessionID)
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPaymentPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if query.BuyerID != nil {
		q = q.Where("buyer_id = ?", *query.BuyerID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.PaymentMethod != nil {
		q = q.Where("payment_method = ?", *query.PaymentMethod)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", query.Cursor.CreatedAt.UTC(), query.Cursor.ID)
	}

	var rows []models.Order
	err := q.Preload("Lines", orderedLines).
		Order("created_at DESC, id DESC").
		Limit(query.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindStalePending returns card orders still awaiting payment that were
// created before cutoff. Orders never checked come first (oldest first),
// then the ones checked longest ago.
func (r *repository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_method = ? AND created_at < ?",
			enums.OrderStatusPaymentPending, enums.PaymentMethodCard, cutoff.UTC()).
		Order("payment_checked_at IS NOT NULL, payment_checked_at ASC, created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPaymentChecked stamps pending orders the sweep looked at without
// settling, moving them behind everything it has not seen yet.
func (r *repository) MarkPaymentChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ? AND status = ?", ids, enums.OrderStatusPaymentPending).
		Update("payment_checked_at", at.UTC()).Error
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
