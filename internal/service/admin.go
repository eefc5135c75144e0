package service

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/and161185/lms-client/internal/convert"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/model"
)

// AdminService defines the review queue operations.
type AdminService interface {
	// Pending returns applications awaiting review.
	Pending(ctx context.Context) ([]model.Loan, error)
	// Approve approves a pending application.
	Approve(ctx context.Context, id int64, notes string) (model.Loan, error)
	// Reject rejects a pending application with one of model.RejectionCodes.
	Reject(ctx context.Context, id int64, reason model.RejectionCode, notes string) (model.Loan, error)
	// Reasons returns the rejection catalogue with display labels.
	Reasons(ctx context.Context) ([]model.RejectionReason, error)
}

type AdminServiceImpl struct {
	api API
	bus *events.Bus
}

// NewAdminService constructs AdminService; bus may be nil.
func NewAdminService(api API, bus *events.Bus) *AdminServiceImpl {
	return &AdminServiceImpl{api: api, bus: bus}
}

func (s *AdminServiceImpl) Pending(ctx context.Context) ([]model.Loan, error) {
	var out convert.LoanList
	if err := s.api.Get(ctx, pathAdminPending, &out); err != nil {
		return nil, err
	}
	return convert.ToLoans(out.Loans), nil
}

func (s *AdminServiceImpl) Approve(ctx context.Context, id int64, notes string) (model.Loan, error) {
	if err := validateID(id); err != nil {
		return model.Loan{}, err
	}
	return s.review(ctx, id, "approve", convert.ReviewRequest{AdminNotes: notes})
}

func (s *AdminServiceImpl) Reject(ctx context.Context, id int64, reason model.RejectionCode, notes string) (model.Loan, error) {
	codes := make([]interface{}, 0, len(model.RejectionCodes))
	for _, c := range model.RejectionCodes {
		codes = append(codes, c)
	}
	err := validation.Errors{
		"id":               validation.Validate(id, validation.Required, validation.Min(int64(1))),
		"rejection_reason": validation.Validate(reason, validation.Required, validation.In(codes...)),
	}.Filter()
	if err != nil {
		return model.Loan{}, errs.NewValidation(err)
	}
	return s.review(ctx, id, "reject", convert.ReviewRequest{RejectionReason: string(reason), AdminNotes: notes})
}

func (s *AdminServiceImpl) review(ctx context.Context, id int64, action string, body convert.ReviewRequest) (model.Loan, error) {
	var out convert.LoanEnvelope
	if err := s.api.Post(ctx, fmt.Sprintf(pathAdminLoanByID, id, action), body, &out); err != nil {
		return model.Loan{}, err
	}
	loan := convert.ToLoan(out.Loan)
	publish(ctx, s.bus, events.LoansChanged, loan)
	return loan, nil
}

func (s *AdminServiceImpl) Reasons(ctx context.Context) ([]model.RejectionReason, error) {
	var out convert.ReasonList
	if err := s.api.Get(ctx, pathAdminReasons, &out); err != nil {
		return nil, err
	}
	return convert.ToReasons(out.Reasons), nil
}
