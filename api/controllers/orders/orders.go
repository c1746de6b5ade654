package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshora-backend/api/middleware"
	"github.com/angelmondragon/freshora-backend/api/responses"
	"github.com/angelmondragon/freshora-backend/api/validators"
	internalorders "github.com/angelmondragon/freshora-backend/internal/orders"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/pagination"
)

// Mine returns the authenticated buyer's orders, newest first.
func Mine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		buyerID := middleware.BuyerIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated buyer required"))
			return
		}

		params, filters, err := parseListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForBuyer(r.Context(), buyerID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// All returns every order for operators. The route is expected to sit
// behind a seller role check.
func All(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		params, filters, err := parseListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListAll(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseListQuery(r *http.Request) (pagination.Params, internalorders.Filters, error) {
	var filters internalorders.Filters
	q := validators.QueryOf(r)

	limit, err := q.Int("limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, filters, err
	}
	params := pagination.Params{Limit: limit, Cursor: q.String("cursor")}

	if raw := q.String("status"); raw != "" {
		status, err := enums.ParseOrderStatus(strings.ToLower(raw))
		if err != nil {
			return params, filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
				WithDetails(map[string]any{"field": "status"})
		}
		filters.Status = &status
	}

	if raw := q.String("payment_method"); raw != "" {
		method, err := enums.ParsePaymentMethod(raw)
		if err != nil {
			return params, filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method filter").
				WithDetails(map[string]any{"field": "payment_method"})
		}
		filters.PaymentMethod = &method
	}

	return params, filters, nil
}
