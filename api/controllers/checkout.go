package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freshora-backend/api/middleware"
	"github.com/angelmondragon/freshora-backend/api/responses"
	"github.com/angelmondragon/freshora-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/freshora-backend/internal/checkout"
	"github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
)

const maxAddressRefLength = 128

type checkoutRequest struct {
	Address string                `json:"address" validate:"required"`
	Email   string                `json:"email,omitempty" validate:"omitempty,email"`
	Items   []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type checkoutItemRequest struct {
	Product     string               `json:"product" validate:"required"`
	Quantity    int                  `json:"quantity" validate:"min=1"`
	ProductData *productDataSnapshot `json:"productData,omitempty"`
}

type productDataSnapshot struct {
	Name       string          `json:"name"`
	OfferPrice decimal.Decimal `json:"offerPrice"`
	Image      string          `json:"image,omitempty"`
	Category   string          `json:"category,omitempty"`
}

type cardCheckoutResponse struct {
	OrderID   uuid.UUID `json:"orderId"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
}

// CheckoutCOD places a cash-on-delivery order for the authenticated buyer.
func CheckoutCOD(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		input, err := decodePlaceOrderInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.PlaceCOD(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, orders.ToView(*order))
	}
}

// CheckoutCard persists a pending card order and returns the hosted payment
// page the storefront should redirect to.
func CheckoutCard(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		input, err := decodePlaceOrderInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceCard(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, cardCheckoutResponse{
			OrderID:   result.Order.ID,
			SessionID: result.SessionID,
			URL:       result.RedirectURL,
		})
	}
}

func decodePlaceOrderInput(r *http.Request) (checkoutsvc.PlaceOrderInput, error) {
	buyerID := middleware.BuyerIDFromContext(r.Context())
	if buyerID == uuid.Nil {
		return checkoutsvc.PlaceOrderInput{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated buyer required")
	}

	var payload checkoutRequest
	if err := validators.DecodeJSONBodyLenient(r, &payload); err != nil {
		return checkoutsvc.PlaceOrderInput{}, err
	}

	email := strings.TrimSpace(payload.Email)
	if email == "" {
		email = middleware.EmailFromContext(r.Context())
	}

	return checkoutsvc.PlaceOrderInput{
		BuyerID:      buyerID,
		Lines:        payload.lines(),
		AddressRef:   validators.SanitizeString(payload.Address, maxAddressRefLength),
		ContactEmail: email,
		Origin:       r.Header.Get("Origin"),
	}, nil
}

func (p checkoutRequest) lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(p.Items))
	for _, item := range p.Items {
		line := pricing.Line{
			ProductRef: strings.TrimSpace(item.Product),
			Quantity:   item.Quantity,
		}
		if item.ProductData != nil {
			line.Snapshot = &pricing.Snapshot{
				Name:      strings.TrimSpace(item.ProductData.Name),
				UnitPrice: item.ProductData.OfferPrice,
				Image:     item.ProductData.Image,
				Category:  item.ProductData.Category,
			}
		}
		lines = append(lines, line)
	}
	return lines
}
