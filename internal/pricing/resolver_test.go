package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

type fakeCatalog struct {
	products map[uuid.UUID]*models.Product
	calls    int
}

func (f *fakeCatalog) FindProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	f.calls++
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithReason(pkgerrors.ReasonProductNotFound)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSourceFor(t *testing.T) {
	catalogID := uuid.New()
	cases := []struct {
		name   string
		line   Line
		kind   enums.PriceSource
		reason pkgerrors.Reason
	}{
		{
			name: "catalog id ignores snapshot",
			line: Line{ProductRef: catalogID.String(), Snapshot: &Snapshot{Name: "Cheap", UnitPrice: dec("0.01")}, Quantity: 1},
			kind: enums.PriceSourceCatalog,
		},
		{
			name: "snapshot only",
			line: Line{ProductRef: "promo-x", Snapshot: &Snapshot{Name: "Bundle", UnitPrice: dec("50")}, Quantity: 1},
			kind: enums.PriceSourceSnapshot,
		},
		{
			name:   "non catalog without snapshot",
			line:   Line{ProductRef: "promo-x", Quantity: 1},
			reason: pkgerrors.ReasonInvalidProductSnapshot,
		},
		{
			name:   "zero snapshot price",
			line:   Line{ProductRef: "promo-x", Snapshot: &Snapshot{Name: "Bundle", UnitPrice: decimal.Zero}, Quantity: 1},
			reason: pkgerrors.ReasonInvalidProductSnapshot,
		},
		{
			name:   "blank snapshot name",
			line:   Line{ProductRef: "promo-x", Snapshot: &Snapshot{Name: "  ", UnitPrice: dec("3")}, Quantity: 1},
			reason: pkgerrors.ReasonInvalidProductSnapshot,
		},
		{
			name:   "empty ref",
			line:   Line{ProductRef: " ", Quantity: 1},
			reason: pkgerrors.ReasonInvalidInput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source, err := SourceFor(tc.line)
			if tc.reason != "" {
				require.Error(t, err)
				require.True(t, pkgerrors.HasReason(err, tc.reason), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.kind, source.Kind())
		})
	}
}

func TestResolveSnapshotSkipsCatalog(t *testing.T) {
	catalog := &fakeCatalog{}
	resolver := NewResolver(catalog)

	line, err := resolver.Resolve(context.Background(), Line{
		ProductRef: "promo-x",
		Snapshot:   &Snapshot{Name: "Bundle", UnitPrice: dec("50")},
		Quantity:   1,
	})
	require.NoError(t, err)
	require.Equal(t, "Bundle", line.Name)
	require.True(t, line.UnitPrice.Equal(dec("50")))
	require.Equal(t, enums.PriceSourceSnapshot, line.Source)
	require.Zero(t, catalog.calls)
}

func TestResolveCatalogUsesOfferPrice(t *testing.T) {
	id := uuid.New()
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{
		id: {ID: id, Name: "Milk", Category: "Dairy", Price: dec("3.00"), OfferPrice: dec("2.50")},
	}}
	resolver := NewResolver(catalog)

	line, err := resolver.Resolve(context.Background(), Line{
		ProductRef: id.String(),
		Snapshot:   &Snapshot{Name: "Milk", UnitPrice: dec("0.10")},
		Quantity:   2,
	})
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(dec("2.50")), "client price must not override catalog")
	require.True(t, line.LineTotal().Equal(dec("5.00")))
	require.Equal(t, 1, catalog.calls)
}

func TestResolveAllStopsAtFirstFailure(t *testing.T) {
	known := uuid.New()
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{
		known: {ID: known, Name: "Eggs", OfferPrice: dec("4")},
	}}
	resolver := NewResolver(catalog)

	_, err := resolver.ResolveAll(context.Background(), []Line{
		{ProductRef: known.String(), Quantity: 1},
		{ProductRef: uuid.NewString(), Quantity: 1},
		{ProductRef: known.String(), Quantity: 1},
	})
	require.Error(t, err)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonProductNotFound))
	require.Equal(t, 2, catalog.calls)

	_, err = resolver.ResolveAll(context.Background(), nil)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidInput))

	_, err = resolver.ResolveAll(context.Background(), []Line{{ProductRef: known.String(), Quantity: 0}})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidInput))
}
