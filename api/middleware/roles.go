package middleware

import (
	"net/http"

	"github.com/angelmondragon/freshcart-backend/api/responses"
	"github.com/angelmondragon/freshcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

// RequireRole must run after Auth. A request without a caller is
// unauthorized; a caller whose role fails allow is forbidden.
func RequireRole(logg *logger.Logger, allow func(enums.Role) bool, denial string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorOf(r.Context())
			switch {
			case actor.UserID == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			case !allow(actor.Role):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, denial))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireAdmin lets admins and superadmins through.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return RequireRole(logg, enums.Role.IsAdmin, "admin role required")
}
