package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/credentials"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
)

// SessionResolver resolves an opaque session token to its session and user.
type SessionResolver interface {
	GetSessionAndUser(ctx context.Context, token domain.SessionToken) (credentials.SessionAndUser, error)
}

// NewSessionAuthMiddleware enforces Authorization: Bearer <sessionToken> for every
// endpoint except /healthz.
//
// On success, it stores the session's user in request context.
func NewSessionAuthMiddleware(sessions SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing Authorization header", nil)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}

			su, err := sessions.GetSessionAndUser(r.Context(), domain.SessionToken(raw))
			switch {
			case err == nil:
			case errors.Is(err, integrity.ErrExpired):
				writeError(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired", nil)
				return
			case errors.Is(err, integrity.ErrNotFound):
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session", nil)
				return
			default:
				writeAppError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), su.User)))
		})
	}
}
