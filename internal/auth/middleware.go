package auth

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/httpx"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom returns the caller attached by Middleware, or nil.
func IdentityFrom(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(contextKey{}).(*models.Identity)
	return id
}

// Middleware resolves the bearer token, when present, and stores the caller
// identity on the request context. Requests with a bad token continue
// anonymously; the operation they reach decides whether that is allowed.
func (s *Service) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := httpx.BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := s.Resolve(token)
			if err != nil {
				s.logger.WithField("path", r.URL.Path).Debug("Ignoring invalid bearer token")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdmin rejects callers that are anonymous (401) or not administrators (403).
func RequireAdmin(logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFrom(r.Context())
			switch {
			case id == nil:
				httpx.RespondWithError(w, logger, apperr.Unauthenticated("authentication required"))
			case !id.IsAdmin:
				httpx.RespondWithError(w, logger, apperr.Forbidden("Admin access required"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
