package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/pagination"
)

// Service is the read side of the order ledger.
type Service interface {
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters Filters) (*OrderList, error)
	ListAll(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	return &service{repo: repo}, nil
}

// ListForBuyer returns only orders placed by buyerID.
func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters Filters) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity required")
	}
	return s.list(ctx, &buyerID, params, filters)
}

// ListAll returns every order. Callers enforce the operator role.
func (s *service) ListAll(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error) {
	return s.list(ctx, nil, params, filters)
}

func (s *service) list(ctx context.Context, buyerID *uuid.UUID, params pagination.Params, filters Filters) (*OrderList, error) {
	query := ListQuery{
		BuyerID:       buyerID,
		Status:        filters.Status,
		PaymentMethod: filters.PaymentMethod,
		Limit:         pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve orders")
	}

	page := pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	views := make([]OrderView, 0, len(page.Items))
	for _, row := range page.Items {
		views = append(views, ToView(row))
	}
	return &OrderList{Items: views, NextCursor: page.NextCursor}, nil
}
