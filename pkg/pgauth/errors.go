package pgauth

import "errors"

// Sentinel errors returned by Verify. Callers map these to HTTP status
// codes: Expired, BadSignature, and Replayed all surface as 403; Malformed
// surfaces as 401 when the parameter is missing entirely, 403 otherwise.
var (
	// ErrMalformed reports a token that is not 64 characters of URL-safe
	// base64 decoding to exactly 48 bytes.
	ErrMalformed = errors.New("pgauth: malformed token")
	// ErrExpired reports a token whose embedded timestamp is 10s or more
	// away from the verifier's clock, in either direction.
	ErrExpired = errors.New("pgauth: token expired")
	// ErrBadSignature reports a token whose HMAC does not match.
	ErrBadSignature = errors.New("pgauth: bad token signature")
	// ErrReplayed reports a token identity already accepted within the
	// replay window.
	ErrReplayed = errors.New("pgauth: token already used")
)
