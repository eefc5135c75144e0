package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/and161185/lms-client/internal/model"
)

func TestFlexID_NumberOrString(t *testing.T) {
	t.Parallel()

	var r AuthResponse
	if err := json.Unmarshal([]byte(`{"pending_registration_id": 42, "reset_id": "ab-1"}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id, err := r.PendingRegistrationID.Int64()
	if err != nil || id != 42 {
		t.Fatalf("registration id: %v %v", id, err)
	}
	if r.ResetID != "ab-1" {
		t.Fatalf("reset id: %q", r.ResetID)
	}
	if r.PendingLoginID != "" {
		t.Fatalf("absent id must stay empty, got %q", r.PendingLoginID)
	}

	if err := json.Unmarshal([]byte(`{"reset_id": null}`), &r); err != nil || r.ResetID != "" {
		t.Fatalf("null reset id: %q %v", r.ResetID, err)
	}
}

func TestToIdentity(t *testing.T) {
	t.Parallel()

	if _, err := ToIdentity(nil); err == nil {
		t.Fatalf("nil user must fail")
	}
	if _, err := ToIdentity(&User{ID: 1, Role: "root"}); err == nil {
		t.Fatalf("unknown role must fail")
	}

	got, err := ToIdentity(&User{ID: 1, Username: "alice", Email: "a@x.com", Role: "user", CreatedAt: "2024-05-01T10:00:00.123456"})
	if err != nil {
		t.Fatalf("ToIdentity: %v", err)
	}
	if got.Username != "alice" || got.Role != model.RoleUser || got.ProfileCompleted {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if !got.NeedsProfile() {
		t.Fatalf("user without profile must need one")
	}
	if got.CreatedAt.Year() != 2024 {
		t.Fatalf("created_at not parsed: %v", got.CreatedAt)
	}
}

func TestToLoan_OptionalFields(t *testing.T) {
	t.Parallel()

	reason := "EXCEEDS_LIMIT"
	reviewed := "2024-05-02T09:30:00"
	by := int64(7)
	in := Loan{
		ID: 3, UserID: 1, Amount: 1500.5, Purpose: "car", Status: "rejected",
		RejectionReason: &reason, ReviewedAt: &reviewed, ReviewedBy: &by,
		CreatedAt: "2024-05-01T10:00:00",
		User:      &User{ID: 1, Username: "alice", Role: "user"},
	}
	got := ToLoan(in)
	if got.Status != model.LoanRejected || got.RejectionReason != model.ReasonExceedsLimit {
		t.Fatalf("status/reason mismatch: %+v", got)
	}
	if got.ReviewedBy != 7 || got.ReviewedAt.IsZero() {
		t.Fatalf("review fields mismatch: %+v", got)
	}
	if got.Applicant == nil || got.Applicant.Username != "alice" {
		t.Fatalf("applicant missing")
	}

	bare := ToLoan(Loan{ID: 4, Status: "pending"})
	if bare.RejectionReason != "" || !bare.ReviewedAt.IsZero() || bare.Applicant != nil {
		t.Fatalf("absent fields must be zero: %+v", bare)
	}
}

func TestProfile_Roundtrip(t *testing.T) {
	t.Parallel()

	p, err := ToProfile(nil)
	if err != nil || p != nil {
		t.Fatalf("nil profile: %v %v", p, err)
	}

	if _, err := ToProfile(&Profile{DateOfBirth: "01/02/1990"}); err == nil {
		t.Fatalf("bad date must fail")
	}

	dob := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)
	wire := FromProfile(model.Profile{FirstName: "A", DateOfBirth: dob, AnnualIncome: 50000})
	if wire.DateOfBirth != "1990-01-02" || wire.AnnualIncome == nil || *wire.AnnualIncome != 50000 {
		t.Fatalf("wire mismatch: %+v", wire)
	}
	back, err := ToProfile(&wire)
	if err != nil || !back.DateOfBirth.Equal(dob) {
		t.Fatalf("back: %+v %v", back, err)
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	if ts, err := ParseTime(""); err != nil || !ts.IsZero() {
		t.Fatalf("empty: %v %v", ts, err)
	}
	if _, err := ParseTime("2024-05-01T10:00:00Z"); err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatalf("garbage must fail")
	}
}
