package checkout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/freshora-backend/internal/notifications"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/internal/pricing"
	"github.com/angelmondragon/freshora-backend/pkg/config"
	"github.com/angelmondragon/freshora-backend/pkg/db"
	"github.com/angelmondragon/freshora-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

type stubCatalog struct {
	products map[uuid.UUID]*models.Product
}

func (c *stubCatalog) FindProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithReason(pkgerrors.ReasonProductNotFound)
}

type fakeGateway struct {
	conn        *gorm.DB
	err         error
	requests    []pkgstripe.CheckoutSessionRequest
	pendingSeen bool
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.Session, error) {
	g.requests = append(g.requests, req)
	if g.conn != nil {
		var order models.Order
		if err := g.conn.First(&order, "id = ?", req.OrderID).Error; err == nil {
			g.pendingSeen = order.Status == enums.OrderStatusPaymentPending && !order.Paid
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &pkgstripe.Session{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notifications.OrderConfirmation
}

func (n *fakeNotifier) Dispatch(_ context.Context, msg notifications.OrderConfirmation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

type harness struct {
	conn     *gorm.DB
	svc      Service
	gateway  *fakeGateway
	notifier *fakeNotifier
	logs     *bytes.Buffer
	p1       uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	p1 := uuid.New()
	catalog := &stubCatalog{products: map[uuid.UUID]*models.Product{
		p1: {ID: p1, Name: "Organic Apples", Category: "Fruits", Price: decimal.RequireFromString("120"), OfferPrice: decimal.RequireFromString("100.00")},
	}}
	gateway := &fakeGateway{conn: conn}
	notifier := &fakeNotifier{}
	logs := &bytes.Buffer{}
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "checkout-test", Output: logs}),
		TxRunner:   db.NewFromConn(conn),
		Orders:     orders.NewRepository(conn),
		Resolver:   pricing.NewResolver(catalog),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Gateway:    gateway,
		Notifier:   notifier,
		Storefront: config.StorefrontConfig{BaseURL: "https://shop.example/", AllowedOrigins: []string{"https://beta.shop.example"}},
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, gateway: gateway, notifier: notifier, logs: logs, p1: p1}
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Count(&n).Error)
	return n
}

func TestPlaceCODScenario(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()

	order, err := h.svc.PlaceCOD(context.Background(), PlaceOrderInput{
		BuyerID:      buyer,
		Lines:        []pricing.Line{{ProductRef: h.p1.String(), Quantity: 2}},
		AddressRef:   "addr-1",
		ContactEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("204.00")))
	assert.True(t, order.Paid)
	assert.Equal(t, enums.OrderStatusPlaced, order.Status)
	assert.Nil(t, order.PaymentSessionID)

	stored, err := orders.NewRepository(h.conn).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("204")))
	assert.Equal(t, enums.PaymentMethodCOD, stored.PaymentMethod)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, enums.PriceSourceCatalog, stored.Lines[0].PriceSource)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)

	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, "buyer@example.com", h.notifier.msgs[0].Email)
	assert.Equal(t, "204.00", h.notifier.msgs[0].TotalAmount)
}

func TestPlaceCODSnapshotLine(t *testing.T) {
	h := newHarness(t)
	order, err := h.svc.PlaceCOD(context.Background(), PlaceOrderInput{
		BuyerID: uuid.New(),
		Lines: []pricing.Line{{
			ProductRef: "promo-x",
			Snapshot:   &pricing.Snapshot{Name: "Bundle", UnitPrice: decimal.RequireFromString("50"), Image: "bundle.png"},
			Quantity:   1,
		}},
		AddressRef: "addr-1",
	})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("51")))
	require.Len(t, order.Lines, 1)
	assert.Equal(t, enums.PriceSourceSnapshot, order.Lines[0].PriceSource)
	require.NotNil(t, order.Lines[0].SnapshotImage)
	assert.Empty(t, h.notifier.msgs, "no contact email means no confirmation")
}

func TestPlaceCODPersistsNothingOnUnresolvableLine(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.PlaceCOD(context.Background(), PlaceOrderInput{
		BuyerID: uuid.New(),
		Lines: []pricing.Line{
			{ProductRef: h.p1.String(), Quantity: 1},
			{ProductRef: uuid.NewString(), Quantity: 1},
		},
		AddressRef: "addr-1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonProductNotFound))
	assert.Zero(t, h.count(t, &models.Order{}))
	assert.Zero(t, h.count(t, &models.OrderLine{}))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}))
}

func TestPlaceRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	cases := []PlaceOrderInput{
		{BuyerID: uuid.New(), AddressRef: "addr-1"},
		{BuyerID: uuid.New(), Lines: []pricing.Line{{ProductRef: h.p1.String(), Quantity: 1}}},
	}
	for _, input := range cases {
		_, err := h.svc.PlaceCOD(context.Background(), input)
		require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidInput))
		_, err = h.svc.PlaceCard(context.Background(), input)
		require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidInput))
	}
	_, err := h.svc.PlaceCOD(context.Background(), PlaceOrderInput{Lines: []pricing.Line{{ProductRef: h.p1.String(), Quantity: 1}}, AddressRef: "a"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.Zero(t, h.count(t, &models.Order{}))
}

func TestPlaceCardPersistsPendingBeforeGateway(t *testing.T) {
	h := newHarness(t)
	buyer := uuid.New()

	result, err := h.svc.PlaceCard(context.Background(), PlaceOrderInput{
		BuyerID: buyer,
		Lines: []pricing.Line{
			{ProductRef: h.p1.String(), Quantity: 2},
			{ProductRef: "promo-x", Snapshot: &pricing.Snapshot{Name: "Bundle", UnitPrice: decimal.RequireFromString("19.99")}, Quantity: 3},
		},
		AddressRef:   "addr-9",
		ContactEmail: "buyer@example.com",
		Origin:       "https://beta.shop.example",
	})
	require.NoError(t, err)
	assert.True(t, h.gateway.pendingSeen, "pending order must exist when the gateway is called")
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", result.RedirectURL)

	require.Len(t, h.gateway.requests, 1)
	req := h.gateway.requests[0]
	assert.Equal(t, result.Order.ID.String(), req.OrderID)
	assert.Equal(t, "https://beta.shop.example/loader?next=my-orders", req.SuccessURL)
	assert.Equal(t, "https://beta.shop.example/cart", req.CancelURL)
	require.Len(t, req.LineItems, 2)
	assert.Equal(t, int64(10200), req.LineItems[0].UnitAmountCent)
	assert.Equal(t, int64(2039), req.LineItems[1].UnitAmountCent)
	assert.Equal(t, buyer.String(), req.Metadata[pkgstripe.MetadataUserID])
	assert.Equal(t, "addr-9", req.Metadata[pkgstripe.MetadataAddressID])

	decoded, err := DecodeItems(req.Metadata[pkgstripe.MetadataItems])
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Nil(t, decoded[0].Snapshot, "catalog lines carry no price")
	require.NotNil(t, decoded[1].Snapshot)
	assert.True(t, decoded[1].Snapshot.UnitPrice.Equal(decimal.RequireFromString("19.99")))

	stored, err := orders.NewRepository(h.conn).FindByID(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.False(t, stored.Paid)
	assert.Equal(t, enums.OrderStatusPaymentPending, stored.Status)
	require.NotNil(t, stored.PaymentSessionID)
	assert.Equal(t, "cs_test_1", *stored.PaymentSessionID)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("264.97")))
	require.NotNil(t, stored.GatewayAmount)
	assert.True(t, stored.GatewayAmount.Equal(decimal.RequireFromString("265.17")))
	assert.Empty(t, h.notifier.msgs, "card confirmations wait for payment")
}

func TestPlaceCardGatewayFailureKeepsPendingOrder(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = errors.New("stripe: connection refused")

	_, err := h.svc.PlaceCard(context.Background(), PlaceOrderInput{
		BuyerID:    uuid.New(),
		Lines:      []pricing.Line{{ProductRef: h.p1.String(), Quantity: 1}},
		AddressRef: "addr-1",
		Origin:     "https://evil.example",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonGatewayUnavailable))
	assert.Equal(t, "https://shop.example/cart", h.gateway.requests[0].CancelURL, "unknown origins fall back to the storefront")

	var rows []models.Order
	require.NoError(t, h.conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.OrderStatusPaymentPending, rows[0].Status)
	assert.Nil(t, rows[0].PaymentSessionID)
}

func TestPlaceCardResolutionFailureSkipsGateway(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.PlaceCard(context.Background(), PlaceOrderInput{
		BuyerID:    uuid.New(),
		Lines:      []pricing.Line{{ProductRef: "promo-x", Quantity: 1}},
		AddressRef: "addr-1",
	})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidProductSnapshot))
	assert.Empty(t, h.gateway.requests)
	assert.Zero(t, h.count(t, &models.Order{}))
}

func TestPlaceCardOmitsOversizedItemsAndWarns(t *testing.T) {
	h := newHarness(t)
	lines := make([]pricing.Line, 0, 12)
	for i := 0; i < 12; i++ {
		lines = append(lines, pricing.Line{
			ProductRef: fmt.Sprintf("promo-%02d", i),
			Snapshot:   &pricing.Snapshot{Name: fmt.Sprintf("Seasonal Bundle %02d", i), UnitPrice: decimal.RequireFromString("4.25")},
			Quantity:   1,
		})
	}

	result, err := h.svc.PlaceCard(context.Background(), PlaceOrderInput{
		BuyerID:    uuid.New(),
		Lines:      lines,
		AddressRef: "addr-2",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.RedirectURL)

	require.Len(t, h.gateway.requests, 1)
	req := h.gateway.requests[0]
	_, hasItems := req.Metadata[pkgstripe.MetadataItems]
	assert.False(t, hasItems)
	assert.NotEmpty(t, req.Metadata[pkgstripe.MetadataUserID])
	assert.Len(t, req.LineItems, 12)
	assert.Contains(t, h.logs.String(), "exceed session metadata limit")
	assert.Contains(t, h.logs.String(), result.Order.ID.String())
}
