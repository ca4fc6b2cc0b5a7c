package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/freshcart-backend/api/responses"
	pkgAuth "github.com/angelmondragon/freshcart-backend/pkg/auth"
	"github.com/angelmondragon/freshcart-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freshcart-backend/pkg/errors"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth validates a bearer token and stores its caller as the request Actor.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			actor := Actor{
				UserID:    claims.UserID.String(),
				Role:      claims.Role,
				TokenID:   claims.TokenID(),
				ExpiresAt: claims.Expiry(),
			}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID)
				ctx = logg.WithActorRole(ctx, string(actor.Role))
				ctx = logg.WithField(ctx, "token_id", actor.TokenID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, and a bare token. The
// scheme word on its own carries no credential.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	switch {
	case len(parts) == 1 && !strings.EqualFold(parts[0], bearerScheme):
		return parts[0], true
	case len(parts) == 2 && strings.EqualFold(parts[0], bearerScheme):
		return parts[1], true
	default:
		return "", false
	}
}
