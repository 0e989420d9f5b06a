package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/shelf-api/internal/api/shared"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/phrazzld/shelf-api/internal/service/auth"
)

// AuthStatusHeader reports whether the request carried a validated credential.
const AuthStatusHeader = "X-Auth-Status"

// Values of AuthStatusHeader
const (
	AuthStatusValidated = "validated"
	AuthStatusNone      = "none"
)

// Authenticator resolves a credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (auth.Result, error)
}

// AuthMiddleware authenticates opaque bearer tokens for routes.
type AuthMiddleware struct {
	authenticator Authenticator
	cookieName    string
}

// NewAuthMiddleware creates an AuthMiddleware that falls back to cookieName
// when no bearer header is present.
func NewAuthMiddleware(authenticator Authenticator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		cookieName:    cookieName,
	}
}

// ExtractCredential returns the bearer token from the Authorization header or,
// failing that, from the named cookie. A header in any other form is ignored.
func ExtractCredential(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token := strings.TrimSpace(value); token != "" {
				return token
			}
		}
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// AuthStatus marks every response as unauthenticated until Authenticate
// upgrades it. Apply it globally so public routes carry the header too.
func AuthStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(AuthStatusHeader, AuthStatusNone)
		next.ServeHTTP(w, r)
	})
}

// Authenticate resolves the presented credential on every request. Anonymous
// requests pass through without an identity; rejected credentials get a 401.
// Authenticated requests carry a shared.Identity in their context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(AuthStatusHeader, AuthStatusNone)

		result, err := m.authenticator.Authenticate(r.Context(), ExtractCredential(r, m.cookieName))
		if err != nil {
			logger.FromContextOrDefault(r.Context(), nil).Error("failed to authenticate request",
				slog.String("error", redact.Error(err)))
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			return
		}

		switch result.Outcome {
		case auth.Authenticated:
			w.Header().Set(AuthStatusHeader, AuthStatusValidated)
			ctx := shared.WithIdentity(r.Context(), shared.Identity{User: result.User, Token: result.Token})
			ctx = logger.WithLogger(ctx, logger.FromContextOrDefault(ctx, nil).With(
				slog.String("user_id", result.User.ID.String())))
			next.ServeHTTP(w, r.WithContext(ctx))
		case auth.Rejected:
			shared.RespondUnauthorized(w, r, string(result.Reason), result.Reason.Message())
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// RequireAuth rejects requests that reached it without an identity. It must
// run after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.IdentityFromContext(r.Context()); !ok {
			reason := auth.ReasonMissingCredential
			shared.RespondUnauthorized(w, r, string(reason), reason.Message())
			return
		}
		next.ServeHTTP(w, r)
	})
}
