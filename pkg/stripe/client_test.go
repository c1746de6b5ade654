package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freshora-backend/pkg/config"
)

func TestNewClientValidatesKeyForEnvironment(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_live_abc", Secret: "whsec", Env: "test"}, nil)
	require.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Env: "test"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_abc", Secret: "whsec", Env: "TEST", Currency: "USD"}, nil)
	require.NoError(t, err)
	require.Equal(t, "test", client.Environment())
	require.Equal(t, "usd", client.Currency())
	require.Equal(t, "whsec", client.SigningSecret())
}

func TestCreateCheckoutSessionBuildsParams(t *testing.T) {
	backend := &fakeSessionBackend{created: &stripe.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}}
	client := &Client{sessions: backend, currency: "usd"}

	longItems := make([]byte, MaxMetadataValueLen+1)
	for i := range longItems {
		longItems[i] = 'x'
	}

	sess, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:       "order-1",
		CustomerEmail: "buyer@example.com",
		SuccessURL:    "https://shop.example/loader?next=my-orders",
		CancelURL:     "https://shop.example/cart",
		LineItems: []CheckoutLineItem{
			{Name: "Apples", UnitAmountCent: 510, Quantity: 2},
		},
		Metadata: map[string]string{
			MetadataUserID: "user-1",
			MetadataItems:  string(longItems),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", sess.ID)
	require.Equal(t, "https://pay.example/cs_1", sess.URL)

	params := backend.lastNew
	require.NotNil(t, params)
	require.NotNil(t, params.Context)
	require.Equal(t, "payment", *params.Mode)
	require.Equal(t, "order-1", *params.ClientReferenceID)
	require.Equal(t, "buyer@example.com", *params.CustomerEmail)
	require.Len(t, params.LineItems, 1)
	require.Equal(t, int64(510), *params.LineItems[0].PriceData.UnitAmount)
	require.Equal(t, "usd", *params.LineItems[0].PriceData.Currency)
	require.Equal(t, int64(2), *params.LineItems[0].Quantity)
	require.Equal(t, "order-1", params.Metadata[MetadataOrderID])
	require.Equal(t, "user-1", params.Metadata[MetadataUserID])
	_, hasItems := params.Metadata[MetadataItems]
	require.False(t, hasItems, "oversized metadata values are dropped")
}

func TestCreateCheckoutSessionRejectsBadInput(t *testing.T) {
	client := &Client{sessions: &fakeSessionBackend{}, currency: "usd"}
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:    "order-1",
		SuccessURL: "s",
		CancelURL:  "c",
		LineItems:  []CheckoutLineItem{{Name: "x", UnitAmountCent: 0, Quantity: 1}},
	})
	require.Error(t, err)
}

func TestCreateCheckoutSessionPropagatesGatewayError(t *testing.T) {
	client := &Client{sessions: &fakeSessionBackend{err: errors.New("boom")}, currency: "usd"}
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		OrderID:    "order-1",
		SuccessURL: "s",
		CancelURL:  "c",
		LineItems:  []CheckoutLineItem{{Name: "x", UnitAmountCent: 100, Quantity: 1}},
	})
	require.Error(t, err)
}

func TestRetrieveSession(t *testing.T) {
	backend := &fakeSessionBackend{fetched: &stripe.CheckoutSession{
		ID:                "cs_2",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		ClientReferenceID: "order-9",
	}}
	client := &Client{sessions: backend}

	sess, err := client.RetrieveSession(context.Background(), "cs_2")
	require.NoError(t, err)
	require.True(t, sess.Paid())
	require.Equal(t, "order-9", sess.OrderID())
	require.Equal(t, "cs_2", backend.lastGetID)

	_, err = client.RetrieveSession(context.Background(), " ")
	require.Error(t, err)
}

func TestSessionOrderIDPrefersMetadata(t *testing.T) {
	sess := &Session{ClientReferenceID: "ref", Metadata: map[string]string{MetadataOrderID: "meta"}}
	require.Equal(t, "meta", sess.OrderID())
	require.False(t, (&Session{PaymentStatus: "unpaid"}).Paid())
	require.True(t, (&Session{PaymentStatus: "no_payment_required"}).Paid())
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	verifier := NewWebhookVerifier("whsec_test")
	payload := signedTestEvent(t)

	header := signatureHeader(payload, "whsec_test", time.Now().Unix())
	event, err := verifier.ConstructEvent(payload, header)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)

	_, err = verifier.ConstructEvent(payload, signatureHeader(payload, "whsec_other", time.Now().Unix()))
	require.Error(t, err)

	_, err = NewWebhookVerifier("").ConstructEvent(payload, header)
	require.Error(t, err)
}

func signedTestEvent(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(&stripe.CheckoutSession{ID: "cs_1"})
	require.NoError(t, err)
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_1",
		Object:     "event",
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	})
	require.NoError(t, err)
	return payload
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeSessionBackend struct {
	created   *stripe.CheckoutSession
	fetched   *stripe.CheckoutSession
	err       error
	lastNew   *stripe.CheckoutSessionParams
	lastGetID string
}

func (f *fakeSessionBackend) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.lastNew = params
	if f.err != nil {
		return nil, f.err
	}
	return f.created, nil
}

func (f *fakeSessionBackend) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.lastGetID = id
	if f.err != nil {
		return nil, f.err
	}
	return f.fetched, nil
}
