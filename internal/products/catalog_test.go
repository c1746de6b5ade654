package product

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freshora-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
)

func TestCatalogFindProduct(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t, dbtest.ProductsTable)
	repo := NewRepository(conn)

	apples := &models.Product{
		Name:       "Apples",
		Category:   "Fruits",
		Price:      decimal.RequireFromString("6.00"),
		OfferPrice: decimal.RequireFromString("5.00"),
		InStock:    true,
	}
	require.NoError(t, repo.Create(ctx, apples))
	require.NotEqual(t, uuid.Nil, apples.ID)

	catalog, err := NewCatalog(repo)
	require.NoError(t, err)

	found, err := catalog.FindProduct(ctx, apples.ID)
	require.NoError(t, err)
	require.Equal(t, "Apples", found.Name)
	require.True(t, found.OfferPrice.Equal(decimal.RequireFromString("5")))

	_, err = catalog.FindProduct(ctx, uuid.New())
	require.Error(t, err)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonProductNotFound))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCatalogWrapsInfrastructureErrors(t *testing.T) {
	catalog, err := NewCatalog(failingReader{})
	require.NoError(t, err)

	_, err = catalog.FindProduct(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = NewCatalog(nil)
	require.Error(t, err)
}

type failingReader struct{}

func (failingReader) FindByID(context.Context, uuid.UUID) (*models.Product, error) {
	return nil, errors.New("connection reset")
}
