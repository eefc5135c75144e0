// Package model defines domain entities shared by the session, services and CLI.
package model

import "time"

// Role is the account role reported by the backend.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated user's public profile data.
type Identity struct {
	ID               int64
	Username         string
	Email            string
	Role             Role
	ProfileCompleted bool
	CreatedAt        time.Time // zero if the backend omitted it
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// NeedsProfile reports whether the identity must complete its profile before using other views.
func (i Identity) NeedsProfile() bool { return i.Role == RoleUser && !i.ProfileCompleted }

// FlowKind names one of the OTP-gated flows.
type FlowKind int

const (
	FlowNone FlowKind = iota
	FlowRegistration
	FlowLogin
	FlowReset
)

func (k FlowKind) String() string {
	switch k {
	case FlowRegistration:
		return "registration"
	case FlowLogin:
		return "login"
	case FlowReset:
		return "reset"
	default:
		return "none"
	}
}

// PendingRegistration awaits the registration OTP.
type PendingRegistration struct {
	RegistrationID int64
	Email          string
}

// PendingLogin awaits the login OTP.
type PendingLogin struct {
	LoginID int64
	Email   string // masked by the backend
}

// PendingReset is two-phase: ResetID until the OTP is verified, then ResetToken.
type PendingReset struct {
	ResetID    string
	Email      string
	ResetToken string // set after OTP verification, single use
}

// Verified reports whether the OTP step has produced a reset token.
func (p PendingReset) Verified() bool { return p.ResetToken != "" }

// LoanStatus is the review state of a loan application.
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanApproved LoanStatus = "approved"
	LoanRejected LoanStatus = "rejected"
)

// RejectionCode is a reason code accepted by the admin reject endpoint.
type RejectionCode string

const (
	ReasonInsufficientIncome      RejectionCode = "INSUFFICIENT_INCOME"
	ReasonPoorCreditHistory       RejectionCode = "POOR_CREDIT_HISTORY"
	ReasonIncompleteDocumentation RejectionCode = "INCOMPLETE_DOCUMENTATION"
	ReasonExceedsLimit            RejectionCode = "EXCEEDS_LIMIT"
	// ReasonAutoRejected is only ever set by the backend for stale applications.
	ReasonAutoRejected RejectionCode = "AUTO_REJECTED"
)

// RejectionCodes lists the codes an admin may submit.
var RejectionCodes = []RejectionCode{
	ReasonInsufficientIncome,
	ReasonPoorCreditHistory,
	ReasonIncompleteDocumentation,
	ReasonExceedsLimit,
}

// RejectionReason is a code with its display label.
type RejectionReason struct {
	Code  RejectionCode
	Label string
}

// Loan is a loan application as returned by the backend.
type Loan struct {
	ID              int64
	UserID          int64
	Amount          float64
	Purpose         string
	Status          LoanStatus
	RejectionReason RejectionCode
	AdminNotes      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReviewedAt      time.Time
	ReviewedBy      int64
	Applicant       *Identity // present on admin listings
}

// Profile holds the applicant details required before applying for a loan.
type Profile struct {
	FirstName        string
	LastName         string
	Phone            string
	Address          string
	DateOfBirth      time.Time
	EmploymentStatus string
	AnnualIncome     float64
	UpdatedAt        time.Time
}
