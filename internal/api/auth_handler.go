package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/shelf-api/internal/api/middleware"
	"github.com/phrazzld/shelf-api/internal/api/shared"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/redact"
)

// legacyCookieNames are credential cookies from earlier clients that logout also clears.
var legacyCookieNames = []string{"access", "refresh"}

// AccountService is the account behavior the auth handler needs.
type AccountService interface {
	Signup(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, *domain.AuthToken, error)
	Logout(ctx context.Context, tokenValue string) error
}

// CookieConfig controls the credential cookie set on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	accounts AccountService
	cookie   CookieConfig
	timeFunc func() time.Time
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(accounts AccountService, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = "auth_token"
	}
	return &AuthHandler{
		accounts: accounts,
		cookie:   cookie,
		timeFunc: time.Now,
	}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.accounts.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, SignupResponse{
		UserID:   user.ID,
		Username: user.Username,
	})
}

// Login handles POST /api/auth/login. The token is returned in the body and
// also set as an HttpOnly cookie for browser clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token.Token,
		Path:     "/",
		Expires:  token.ExpiresAt,
		MaxAge:   int(token.ExpiresAt.Sub(h.timeFunc()).Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	permissions := token.Permissions
	if permissions == nil {
		permissions = map[string]any{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, LoginResponse{
		Status:      "success",
		Message:     "Login successful",
		Token:       token.Token,
		ExpiresAt:   token.ExpiresAt.UTC().Format(time.RFC3339),
		UserID:      user.ID,
		Username:    user.Username,
		Permissions: permissions,
	})
}

// Logout handles POST /api/auth/logout. It revokes the presented token if
// there is one and clears credential cookies. It always succeeds so that
// repeating it, or calling it with a dead token, is harmless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if value := middleware.ExtractCredential(r, h.cookie.Name); value != "" {
		if err := h.accounts.Logout(r.Context(), value); err != nil {
			logger.FromContextOrDefault(r.Context(), nil).Error("failed to revoke token on logout",
				slog.String("token", redact.Token(value)),
				slog.String("error", redact.Error(err)))
		}
	}

	for _, name := range append([]string{h.cookie.Name}, legacyCookieNames...) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: "Logged out",
	})
}
