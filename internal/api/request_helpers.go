package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/api/shared"
	"github.com/phrazzld/shelf-api/internal/domain"
)

// getIdentity returns the authenticated identity, writing a 401 if absent.
// Routes are expected to sit behind RequireAuth, so absence is a wiring bug.
func getIdentity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		shared.RespondUnauthorized(w, r, "missing_credential", "Authentication credentials were not provided")
		return shared.Identity{}, false
	}
	return id, true
}

// getQueryUUID parses a required UUID query parameter.
func getQueryUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(name, "is required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(name, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}
