// Package convert maps JSON wire payloads of the loan API to domain models.
package convert

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexID decodes an identifier sent either as a JSON number or string.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// Int64 parses the id as an integer.
func (f FlexID) Int64() (int64, error) { return strconv.ParseInt(string(f), 10, 64) }

// User is the `user` object returned by auth endpoints and /auth/me.
type User struct {
	ID               int64  `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	ProfileCompleted bool   `json:"profile_completed"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// AuthResponse covers every auth endpoint response; fields are optional per endpoint.
type AuthResponse struct {
	Message               string `json:"message,omitempty"`
	Error                 string `json:"error,omitempty"`
	Success               *bool  `json:"success,omitempty"`
	AccessToken           string `json:"access_token,omitempty"`
	User                  *User  `json:"user,omitempty"`
	RequiresOTP           *bool  `json:"requires_otp,omitempty"`
	PendingRegistrationID FlexID `json:"pending_registration_id,omitempty"`
	PendingLoginID        FlexID `json:"pending_login_id,omitempty"`
	Email                 string `json:"email,omitempty"`
	ResetID               FlexID `json:"reset_id,omitempty"`
	ResetToken            string `json:"reset_token,omitempty"`
}

// ErrorBody is the error payload shape; attempts_left only appears on OTP failures.
type ErrorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	AttemptsLeft *int   `json:"attempts_left"`
}

// Text returns the most specific message in the payload.
func (e ErrorBody) Text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// Loan is the loan object of /loans and /admin endpoints.
type Loan struct {
	ID              int64   `json:"id"`
	UserID          int64   `json:"user_id"`
	Amount          float64 `json:"amount"`
	Purpose         string  `json:"purpose"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason"`
	AdminNotes      *string `json:"admin_notes"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	ReviewedAt      *string `json:"reviewed_at"`
	ReviewedBy      *int64  `json:"reviewed_by"`
	User            *User   `json:"user"`
}

// LoanList wraps `{"loans": [...]}`.
type LoanList struct {
	Loans []Loan `json:"loans"`
}

// LoanEnvelope wraps `{"loan": {...}}`.
type LoanEnvelope struct {
	Message string `json:"message,omitempty"`
	Loan    Loan   `json:"loan"`
}

// CreateLoanRequest is the body of POST /loans.
type CreateLoanRequest struct {
	Amount  float64 `json:"amount"`
	Purpose string  `json:"purpose"`
}

// ReviewRequest is the body of the approve/reject endpoints.
type ReviewRequest struct {
	RejectionReason string `json:"rejection_reason,omitempty"`
	AdminNotes      string `json:"admin_notes,omitempty"`
}

// Reason is one entry of /admin/rejection-reasons.
type Reason struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// ReasonList wraps `{"reasons": [...]}`.
type ReasonList struct {
	Reasons []Reason `json:"reasons"`
}

// Profile is the profile object of /profile.
type Profile struct {
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	Phone            string   `json:"phone"`
	Address          string   `json:"address"`
	DateOfBirth      string   `json:"date_of_birth"`
	EmploymentStatus string   `json:"employment_status"`
	AnnualIncome     *float64 `json:"annual_income"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

// ProfileEnvelope is the response of GET/PUT /profile.
type ProfileEnvelope struct {
	Message          string   `json:"message,omitempty"`
	Profile          *Profile `json:"profile"`
	ProfileCompleted bool     `json:"profile_completed"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of both login endpoints.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// OTPRequest covers the verify and resend bodies; exactly one id is set.
type OTPRequest struct {
	PendingRegistrationID int64  `json:"pending_registration_id,omitempty"`
	PendingLoginID        int64  `json:"pending_login_id,omitempty"`
	ResetID               string `json:"reset_id,omitempty"`
	OTP                   string `json:"otp,omitempty"`
}

// ForgotRequest is the body of POST /auth/forgot-password.
type ForgotRequest struct {
	Email string `json:"email"`
}

// ResetRequest is the body of POST /auth/forgot-password/reset.
type ResetRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}
