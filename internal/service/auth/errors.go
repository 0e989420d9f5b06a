package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidCredentials indicates a username/password pair did not match.
	// Unknown usernames and wrong passwords are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredOrInactive indicates the token exists but no longer authorizes requests.
	ErrExpiredOrInactive = errors.New("token expired or inactive")

	// ErrUserInactive indicates the token's owner has been deactivated.
	ErrUserInactive = errors.New("user is not active")

	// ErrTokenGeneration indicates a unique token value could not be produced.
	ErrTokenGeneration = errors.New("failed to generate token")
)
