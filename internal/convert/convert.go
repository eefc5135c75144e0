package convert

import (
	"fmt"
	"time"

	"github.com/and161185/lms-client/internal/model"
)

// backend timestamps are naive ISO-8601 (UTC) or RFC 3339
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTime parses a backend timestamp; empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, l := range tsLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

func parseTimePtr(s *string) time.Time {
	if s == nil {
		return time.Time{}
	}
	t, _ := ParseTime(*s)
	return t
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ToIdentity converts the wire user into a domain Identity.
func ToIdentity(u *User) (model.Identity, error) {
	if u == nil {
		return model.Identity{}, fmt.Errorf("nil user")
	}
	role := model.Role(u.Role)
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.Identity{}, fmt.Errorf("unknown role %q", u.Role)
	}
	created, _ := ParseTime(u.CreatedAt)
	return model.Identity{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             role,
		ProfileCompleted: u.ProfileCompleted,
		CreatedAt:        created,
	}, nil
}

// ToLoan converts a wire loan into the domain struct.
func ToLoan(in Loan) model.Loan {
	created, _ := ParseTime(in.CreatedAt)
	updated, _ := ParseTime(in.UpdatedAt)
	out := model.Loan{
		ID:              in.ID,
		UserID:          in.UserID,
		Amount:          in.Amount,
		Purpose:         in.Purpose,
		Status:          model.LoanStatus(in.Status),
		RejectionReason: model.RejectionCode(deref(in.RejectionReason)),
		AdminNotes:      deref(in.AdminNotes),
		CreatedAt:       created,
		UpdatedAt:       updated,
		ReviewedAt:      parseTimePtr(in.ReviewedAt),
		ReviewedBy:      deref(in.ReviewedBy),
	}
	if in.User != nil {
		if id, err := ToIdentity(in.User); err == nil {
			out.Applicant = &id
		}
	}
	return out
}

// ToLoans converts a list preserving order.
func ToLoans(in []Loan) []model.Loan {
	out := make([]model.Loan, 0, len(in))
	for _, l := range in {
		out = append(out, ToLoan(l))
	}
	return out
}

// ToReasons converts the rejection reason catalogue.
func ToReasons(in []Reason) []model.RejectionReason {
	out := make([]model.RejectionReason, 0, len(in))
	for _, r := range in {
		out = append(out, model.RejectionReason{Code: model.RejectionCode(r.Code), Label: r.Label})
	}
	return out
}

const dateLayout = "2006-01-02"

// ToProfile converts a wire profile; nil means the user has not created one yet.
func ToProfile(in *Profile) (*model.Profile, error) {
	if in == nil {
		return nil, nil
	}
	var dob time.Time
	if in.DateOfBirth != "" {
		d, err := time.Parse(dateLayout, in.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("date_of_birth: %w", err)
		}
		dob = d
	}
	updated, _ := ParseTime(in.UpdatedAt)
	return &model.Profile{
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Phone:            in.Phone,
		Address:          in.Address,
		DateOfBirth:      dob,
		EmploymentStatus: in.EmploymentStatus,
		AnnualIncome:     deref(in.AnnualIncome),
		UpdatedAt:        updated,
	}, nil
}

// FromProfile builds the PUT /profile body.
func FromProfile(p model.Profile) Profile {
	income := p.AnnualIncome
	out := Profile{
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Phone:            p.Phone,
		Address:          p.Address,
		EmploymentStatus: p.EmploymentStatus,
		AnnualIncome:     &income,
	}
	if !p.DateOfBirth.IsZero() {
		out.DateOfBirth = p.DateOfBirth.Format(dateLayout)
	}
	return out
}
