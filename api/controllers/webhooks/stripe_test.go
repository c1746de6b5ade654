package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

type fakeReconciler struct {
	err     error
	calls   int
	payload []byte
	header  string
}

func (f *fakeReconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) error {
	f.calls++
	f.payload = payload
	f.header = signatureHeader
	return f.err
}

func newWebhookRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(pkgstripe.SignatureHeader, signature)
	}
	return req
}

func TestStripeWebhookAcknowledges(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	rec := &fakeReconciler{}
	resp := httptest.NewRecorder()
	StripeWebhook(rec, nil).ServeHTTP(resp, newWebhookRequest(body, "t=1,v1=abc"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"received":true`) {
		t.Fatalf("expected ack body, got %s", resp.Body.String())
	}
	if !bytes.Equal(rec.payload, body) {
		t.Fatalf("raw payload not passed through")
	}
	if rec.header != "t=1,v1=abc" {
		t.Fatalf("unexpected signature header %q", rec.header)
	}
}

func TestStripeWebhookMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "signature",
			err:    pkgerrors.New(pkgerrors.CodeValidation, "invalid webhook signature").WithReason(pkgerrors.ReasonSignatureInvalid),
			status: http.StatusBadRequest,
		},
		{
			name:   "unreadable signature",
			err:    pkgerrors.Wrap(pkgerrors.CodeValidation, errors.New("no v1 signature"), "invalid webhook signature").WithReason(pkgerrors.ReasonSignatureInvalid),
			status: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			StripeWebhook(&fakeReconciler{err: tc.err}, nil).ServeHTTP(resp, newWebhookRequest([]byte(`{}`), "sig"))
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	rec := &fakeReconciler{}
	body := bytes.Repeat([]byte("a"), maxStripePayloadBytes+1)
	resp := httptest.NewRecorder()
	StripeWebhook(rec, nil).ServeHTTP(resp, newWebhookRequest(body, "sig"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if rec.calls != 0 {
		t.Fatalf("reconciler must not run for oversized payloads")
	}
}

func TestStripeWebhookWithoutReconciler(t *testing.T) {
	resp := httptest.NewRecorder()
	StripeWebhook(nil, nil).ServeHTTP(resp, newWebhookRequest([]byte(`{}`), "sig"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
