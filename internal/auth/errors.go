package auth

import "net/http"

// Error is an authentication or authorization failure with a stable
// machine-readable code. These are surfaced to the caller directly and
// are never retried by the server.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrMissingToken is returned when no bearer token is supplied
	ErrMissingToken = &Error{Code: "MISSING_TOKEN", Message: "Access token required", Status: http.StatusUnauthorized}

	// ErrInvalidToken is returned when the bearer token fails signature
	// or expiry checks
	ErrInvalidToken = &Error{Code: "INVALID_TOKEN", Message: "Invalid or expired token", Status: http.StatusUnauthorized}

	// ErrNotAuthenticated is returned by authorization helpers when no
	// identity was established for the request
	ErrNotAuthenticated = &Error{Code: "NOT_AUTHENTICATED", Message: "Authentication required", Status: http.StatusUnauthorized}

	// ErrInsufficientRole is returned when the authenticated identity
	// lacks a required role
	ErrInsufficientRole = &Error{Code: "INSUFFICIENT_ROLE", Message: "Insufficient privileges", Status: http.StatusForbidden}

	// ErrNotVerified is returned when the operation requires a verified
	// identity
	ErrNotVerified = &Error{Code: "NOT_VERIFIED", Message: "Account verification required", Status: http.StatusForbidden}

	// ErrInvalidChallenge is returned when the signed challenge message is
	// malformed, expired, or replayed
	ErrInvalidChallenge = &Error{Code: "INVALID_CHALLENGE", Message: "Invalid or expired challenge", Status: http.StatusBadRequest}

	// ErrInvalidSignature is returned when signature verification against
	// the claimed public key fails
	ErrInvalidSignature = &Error{Code: "INVALID_SIGNATURE", Message: "Invalid signature", Status: http.StatusUnauthorized}

	// ErrInvalidWallet is returned when the wallet address is not a valid
	// public key
	ErrInvalidWallet = &Error{Code: "INVALID_WALLET", Message: "Invalid wallet address", Status: http.StatusBadRequest}
)
