package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/phrazzld/shelf-api/internal/store"
)

// Outcome classifies an authentication attempt.
type Outcome int

const (
	// Anonymous means no credential was presented.
	Anonymous Outcome = iota
	// Authenticated means the credential resolved to an active user.
	Authenticated
	// Rejected means a credential was presented but does not authorize requests.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reason explains a Rejected outcome. It is returned to clients verbatim.
type Reason string

// Rejection reasons
const (
	ReasonNone              Reason = ""
	ReasonInvalid           Reason = "invalid"
	ReasonExpiredOrInactive Reason = "expired_or_inactive"
	ReasonUserInactive      Reason = "user_inactive"
	ReasonMissingCredential Reason = "missing_credential"
)

// Message returns the client-facing message for a rejection reason.
func (r Reason) Message() string {
	switch r {
	case ReasonInvalid:
		return "Invalid token"
	case ReasonExpiredOrInactive:
		return "Token expired or inactive"
	case ReasonUserInactive:
		return "User is not active"
	case ReasonMissingCredential:
		return "Authentication credentials were not provided"
	default:
		return ""
	}
}

// Result is the outcome of Authenticate. User and Token are set only when
// Outcome is Authenticated.
type Result struct {
	Outcome Outcome
	Reason  Reason
	User    *domain.User
	Token   *domain.AuthToken
}

// Authenticator resolves a presented credential to an identity.
type Authenticator struct {
	tokens TokenService
	users  store.UserStore
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens TokenService, users store.UserStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		tokens: tokens,
		users:  users,
		logger: logger.With(slog.String("component", "authenticator")),
	}
}

// Authenticate checks credential on every call; nothing is cached. The error
// return is reserved for infrastructure failures, which callers should treat
// as a server error rather than a rejection.
//
// A token whose expiry has passed but whose status still reads active is
// rejected, and a separate best-effort write records it as expired.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Result, error) {
	if credential == "" {
		return Result{Outcome: Anonymous}, nil
	}

	log := logger.FromContextOrDefault(ctx, a.logger)

	token, err := a.tokens.Lookup(ctx, credential)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Debug("unknown token presented", slog.String("token", redact.Token(credential)))
			return rejected(ReasonInvalid), nil
		}
		return Result{}, fmt.Errorf("token lookup failed: %w", err)
	}

	if !a.tokens.IsValid(token) {
		if token.IsActive && token.Status == domain.TokenStatusActive {
			if err := a.tokens.MarkExpired(ctx, token.Token); err != nil {
				log.Warn("failed to record token expiry",
					slog.String("token", redact.Token(token.Token)),
					slog.String("error", redact.Error(err)))
			}
		}
		return rejected(ReasonExpiredOrInactive), nil
	}

	user, err := a.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Warn("token references missing user", slog.String("user_id", token.UserID.String()))
			return rejected(ReasonInvalid), nil
		}
		return Result{}, fmt.Errorf("user lookup failed: %w", err)
	}
	if !user.IsActive {
		return rejected(ReasonUserInactive), nil
	}

	return Result{Outcome: Authenticated, User: user, Token: token}, nil
}

func rejected(reason Reason) Result {
	return Result{Outcome: Rejected, Reason: reason}
}
