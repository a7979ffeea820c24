package auth

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned when an access token is not dot-delimited
	// or its payload segment is not base64url.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnexpectedClaims is returned when a token payload decodes but lacks
	// a required claim.
	ErrUnexpectedClaims = errors.New("unexpected token claims")

	// ErrUnexpectedResponse is returned when an identity provider response is
	// well-formed JSON but misses a required field.
	ErrUnexpectedResponse = errors.New("unexpected response")

	ErrInvalidTenantID    = errors.New("invalid tenant id")
	ErrInvalidAuthority   = errors.New("invalid authority")
	ErrInvalidIssuer      = errors.New("invalid issuer")
	ErrMismatchedTenantID = errors.New("mismatched tenant id")

	// ErrCacheIO wraps filesystem failures on the token cache.
	ErrCacheIO = errors.New("token cache i/o")
)

// ServerRejectionError is an OAuth error response from the identity provider
// that the engine does not recover from.
type ServerRejectionError struct {
	Status      int
	Code        string
	Description string
	Body        json.RawMessage
}

func (e *ServerRejectionError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("identity provider rejected request (HTTP %d): %s", e.Status, string(e.Body))
	}
	if e.Description != "" {
		return fmt.Sprintf("identity provider rejected request (HTTP %d): %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("identity provider rejected request (HTTP %d): %s", e.Status, e.Code)
}
