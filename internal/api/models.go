package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
)

// SignupRequest defines the payload for the signup endpoint.
type SignupRequest struct {
	Username string `json:"username" validate:"required,max=150"`
	Email    string `json:"email"    validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SignupResponse is returned for a created account.
type SignupResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse defines the successful response for the login endpoint.
type LoginResponse struct {
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Token       string         `json:"token"`
	ExpiresAt   string         `json:"expires_at"` // RFC 3339, UTC
	UserID      uuid.UUID      `json:"user_id"`
	Username    string         `json:"username"`
	Permissions map[string]any `json:"permissions"`
}

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BulkUploadRequest is the JSON form of a bulk upload.
type BulkUploadRequest struct {
	Rows []domain.BookRow `json:"rows"`
}
