package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/freshora-backend/api/responses"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

// maxStripePayloadBytes bounds the raw body read before verification.
const maxStripePayloadBytes = 1 << 20

// StripeEventHandler verifies and applies one raw Stripe delivery.
type StripeEventHandler interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) error
}

// StripeWebhook passes the exact raw body and signature header to the
// reconciler. A nil result is acknowledged with 200 so Stripe stops
// redelivering. The reconciler only fails deliveries it cannot verify.
func StripeWebhook(reconciler StripeEventHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook reconciler unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStripePayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := reconciler.Handle(ctx, payload, r.Header.Get(pkgstripe.SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteWebhookAck(w)
	}
}
