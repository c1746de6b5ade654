package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Catalog resolves product ids to their authoritative price and name.
type Catalog struct {
	repo productReader
}

func NewCatalog(repo productReader) (*Catalog, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product repository required")
	}
	return &Catalog{repo: repo}, nil
}

// FindProduct returns the catalog entry for id, or a NOT_FOUND error tagged
// ReasonProductNotFound.
func (c *Catalog) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := c.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithReason(pkgerrors.ReasonProductNotFound).
				WithDetails(map[string]any{"product_id": id.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}
