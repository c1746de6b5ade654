package pricing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

// Snapshot is a client-asserted name and price for an item with no catalog entry.
type Snapshot struct {
	Name      string
	UnitPrice decimal.Decimal
	Image     string
	Category  string
}

// Line is one cart entry as submitted by the buyer.
type Line struct {
	ProductRef string
	Snapshot   *Snapshot
	Quantity   int
}

// PriceSource is the single authoritative origin of a line's price. The only
// implementations are CatalogSource and SnapshotSource.
type PriceSource interface {
	Kind() enums.PriceSource
	resolve(ctx context.Context, catalog Catalog) (Resolution, error)
}

// CatalogSource prices a line from the catalog. Client snapshots are never consulted.
type CatalogSource struct {
	ProductID uuid.UUID
}

func (CatalogSource) Kind() enums.PriceSource { return enums.PriceSourceCatalog }

func (s CatalogSource) resolve(ctx context.Context, catalog Catalog) (Resolution, error) {
	if catalog == nil {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable")
	}
	product, err := catalog.FindProduct(ctx, s.ProductID)
	if err != nil {
		return Resolution{}, err
	}
	price := product.OfferPrice
	if !price.IsPositive() {
		price = product.Price
	}
	res := Resolution{
		Name:      product.Name,
		UnitPrice: price.Round(2),
		Source:    enums.PriceSourceCatalog,
	}
	if product.ImageURL != nil {
		res.Image = *product.ImageURL
	}
	res.Category = product.Category
	return res, nil
}

// SnapshotSource prices a line from its client snapshot.
type SnapshotSource struct {
	Name      string
	UnitPrice decimal.Decimal
	Image     string
	Category  string
}

func (SnapshotSource) Kind() enums.PriceSource { return enums.PriceSourceSnapshot }

func (s SnapshotSource) resolve(context.Context, Catalog) (Resolution, error) {
	return Resolution{
		Name:      s.Name,
		UnitPrice: s.UnitPrice,
		Image:     s.Image,
		Category:  s.Category,
		Source:    enums.PriceSourceSnapshot,
	}, nil
}

// SourceFor decides which price source is authoritative for line. A ref that
// parses as a catalog id always yields CatalogSource; anything else needs a
// valid snapshot.
func SourceFor(line Line) (PriceSource, error) {
	ref := strings.TrimSpace(line.ProductRef)
	if ref == "" {
		return nil, invalidInput("product reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil && id != uuid.Nil {
		return CatalogSource{ProductID: id}, nil
	}

	snap := line.Snapshot
	if snap == nil {
		return nil, invalidSnapshot(ref, "product is not in the catalog and carries no snapshot")
	}
	name := strings.TrimSpace(snap.Name)
	if name == "" {
		return nil, invalidSnapshot(ref, "snapshot name is required")
	}
	price := snap.UnitPrice.Round(2)
	if !price.IsPositive() {
		return nil, invalidSnapshot(ref, "snapshot price must be positive")
	}
	return SnapshotSource{
		Name:      name,
		UnitPrice: price,
		Image:     strings.TrimSpace(snap.Image),
		Category:  strings.TrimSpace(snap.Category),
	}, nil
}

func invalidInput(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithReason(pkgerrors.ReasonInvalidInput)
}

func invalidSnapshot(ref, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).
		WithReason(pkgerrors.ReasonInvalidProductSnapshot).
		WithDetails(map[string]any{"product": ref})
}
