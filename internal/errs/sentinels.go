// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client layers.
var (
	// ErrValidation indicates a client-side field check failed or the server rejected input.
	ErrValidation = errors.New("validation failed")

	// ErrAuth indicates bad credentials.
	ErrAuth = errors.New("invalid credentials")

	// ErrForbidden indicates the account is not allowed to use the endpoint (e.g. admin-only login).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidOTP indicates a wrong or expired one-time password.
	ErrInvalidOTP = errors.New("invalid otp")

	// ErrSessionExpired indicates the held credential was rejected by the backend.
	ErrSessionExpired = errors.New("session expired")

	// ErrNetwork indicates no response was received.
	ErrNetwork = errors.New("network error")

	// ErrServer indicates a non-2xx response or an unexpected payload.
	ErrServer = errors.New("server error")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates a resend was attempted inside the cooldown window.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoPendingFlow indicates an OTP step was attempted without a matching start step.
	ErrNoPendingFlow = errors.New("no pending flow")
)
