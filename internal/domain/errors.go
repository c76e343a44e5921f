package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// Credential lifecycle outcomes. These are deliberately distinct: the
	// client UX differs between "your code was wrong" (retry), "your code
	// expired" (request a new one) and "there is no code to check".
	ErrAlreadyVerified   = errors.New("already verified")
	ErrNoCodeOutstanding = errors.New("no code outstanding")
	ErrCodeExpired       = errors.New("code expired")
	ErrInvalidCode       = errors.New("invalid code")
	ErrInvalidToken      = errors.New("invalid token")
	ErrWeakPassword      = errors.New("weak password")
)
