package middleware

import (
	"net/http"

	"github.com/angelmondragon/freshora-backend/api/responses"
	"github.com/angelmondragon/freshora-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
)

func RequireRole(role enums.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != string(role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required").
					WithDetails(map[string]any{"required_role": string(role)}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
