package identity

import "errors"

var (
	// ErrUnauthorized represents a missing, malformed, or unverifiable token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream signals that a call to the identity provider failed for a
	// reason other than the target not existing.
	ErrUpstream = errors.New("identity provider request failed")
)
