package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

// Catalog is the product lookup the resolver depends on.
type Catalog interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Resolution is the authoritative name and unit price of a line.
type Resolution struct {
	Name      string
	UnitPrice decimal.Decimal
	Source    enums.PriceSource
	Image     string
	Category  string
}

// ResolvedLine pairs a submitted line with its resolution.
type ResolvedLine struct {
	Line
	Resolution
}

// LineTotal returns unit price times quantity.
func (l ResolvedLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Resolver struct {
	catalog Catalog
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve prices a single line. It performs no writes.
func (r *Resolver) Resolve(ctx context.Context, line Line) (ResolvedLine, error) {
	if line.Quantity < 1 {
		return ResolvedLine{}, invalidInput("quantity must be at least 1")
	}
	source, err := SourceFor(line)
	if err != nil {
		return ResolvedLine{}, err
	}
	res, err := source.resolve(ctx, r.catalog)
	if err != nil {
		return ResolvedLine{}, err
	}
	return ResolvedLine{Line: line, Resolution: res}, nil
}

// ResolveAll resolves lines in order and stops at the first failure, so a
// caller never sees a partially priced cart.
func (r *Resolver) ResolveAll(ctx context.Context, lines []Line) ([]ResolvedLine, error) {
	if len(lines) == 0 {
		return nil, invalidInput("cart is empty")
	}
	out := make([]ResolvedLine, 0, len(lines))
	for i, line := range lines {
		resolved, err := r.Resolve(ctx, line)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Details() == nil {
				typed.WithDetails(map[string]any{"position": i})
			}
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}
