package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/shelf-api/internal/api/shared"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/ingest"
	"github.com/phrazzld/shelf-api/internal/service/auth"
	"github.com/phrazzld/shelf-api/internal/service/batch"
	"github.com/phrazzld/shelf-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing internal error types.
func MapErrorToStatusCode(err error) int {
	var vErr *domain.ValidationError
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrUserInactive),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrUploadTaskNotFound),
		errors.Is(err, store.ErrBookNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrUsernameExists),
		errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict

	case errors.Is(err, ingest.ErrTooManyRows),
		errors.Is(err, batch.ErrTooManyRows),
		errors.Is(err, ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, batch.ErrNoValidRows),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrMissingColumn),
		errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrMalformedFile),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.As(err, &vErr),
		errors.As(err, &fieldErrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var vErr *domain.ValidationError
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, auth.ErrUserInactive):
		return "User is not active"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Operation not permitted"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrUploadTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrBookNotFound):
		return "Book not found"

	case errors.Is(err, store.ErrUsernameExists):
		return "Username already exists"
	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, ingest.ErrTooManyRows),
		errors.Is(err, batch.ErrTooManyRows):
		return "Too many rows in upload"
	case errors.Is(err, ErrUploadTooLarge):
		return "Upload exceeds the maximum size"
	case errors.Is(err, batch.ErrNoValidRows):
		return "No valid rows to process"
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return "Unsupported file format; upload CSV or XLSX"
	case errors.Is(err, ingest.ErrMissingColumn):
		// The column name is ours, not internal detail.
		return "Invalid upload: " + err.Error()
	case errors.Is(err, ingest.ErrEmptyFile):
		return "Uploaded file is empty"
	case errors.Is(err, ingest.ErrMalformedFile):
		return "Uploaded file could not be read"

	case errors.As(err, &vErr):
		return "Invalid request: " + vErr.Error()
	case errors.As(err, &fieldErrs):
		return SanitizeValidationError(fieldErrs)
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"
	}
	return "An unexpected error occurred"
}

// HandleAPIError writes the mapped status and message for err. A non-empty
// message overrides the mapped one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError reports the first failing request field.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "uuid":
		return "invalid identifier"
	default:
		return "validation failed"
	}
}
