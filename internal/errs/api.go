package errs

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// APIError is a structured failure returned by the API client.
type APIError struct {
	Kind         error  // one of the sentinels above
	Status       int    // HTTP status, 0 when no response was received
	Message      string // server-provided message, may be empty
	Path         string
	AttemptsLeft *int // only set for OTP failures when the server reports it
	Err          error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Path, msg, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return fmt.Sprintf("%s: %d %s", e.Path, e.Status, msg)
}

// Unwrap exposes the sentinel kind so errors.Is works against it.
func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// WithKind returns a copy of e classified as kind.
func (e *APIError) WithKind(kind error) *APIError {
	cp := *e
	cp.Kind = kind
	return &cp
}

// ValidationError carries client-side field errors.
type ValidationError struct {
	Fields validation.Errors
}

// NewValidation wraps an ozzo-validation result; nil in, nil out.
func NewValidation(err error) error {
	if err == nil {
		return nil
	}
	var fe validation.Errors
	if errors.As(err, &fe) {
		return &ValidationError{Fields: fe}
	}
	return &ValidationError{Fields: validation.Errors{"": err}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			parts = append(parts, e.Fields[k].Error())
			continue
		}
		parts = append(parts, k+": "+e.Fields[k].Error())
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Message renders err for a human. Server payload wins, otherwise a generic fallback per kind.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
		if errors.Is(ae.Kind, ErrInvalidOTP) && ae.AttemptsLeft != nil {
			return fmt.Sprintf("Invalid OTP. %d attempts left.", *ae.AttemptsLeft)
		}
		return fallback(ae.Kind, ae.Status)
	}
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrNoPendingFlow),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrServer):
		return err.Error()
	}
	return fallback(nil, 0)
}

func fallback(kind error, status int) string {
	switch {
	case errors.Is(kind, ErrNetwork):
		return "Unable to reach the server. Please check your connection."
	case errors.Is(kind, ErrSessionExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(kind, ErrAuth):
		return "Invalid username or password"
	case errors.Is(kind, ErrInvalidOTP):
		return "Invalid or expired OTP"
	case errors.Is(kind, ErrForbidden):
		return "Access denied"
	case errors.Is(kind, ErrNotFound):
		return "Not found"
	case errors.Is(kind, ErrRateLimited):
		return "Too many requests. Please wait before trying again."
	}
	if status != 0 {
		return fmt.Sprintf("Request failed (%d %s)", status, http.StatusText(status))
	}
	return "Something went wrong. Please try again."
}
