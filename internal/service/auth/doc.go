// Package auth implements custodial bearer-token authentication: issuing
// opaque tokens, validating them on every request, revoking them on logout and
// reconciling lapsed tokens with their recorded status.
package auth
