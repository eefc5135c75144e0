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

// LoanService defines the applicant's loan operations.
type LoanService interface {
	// List returns the caller's applications, newest first.
	List(ctx context.Context) ([]model.Loan, error)
	// Create submits a new application and publishes LoansChanged.
	Create(ctx context.Context, amount float64, purpose string) (model.Loan, error)
	// Get returns one application.
	Get(ctx context.Context, id int64) (model.Loan, error)
}

type LoanServiceImpl struct {
	api API
	bus *events.Bus
}

// NewLoanService constructs LoanService; bus may be nil.
func NewLoanService(api API, bus *events.Bus) *LoanServiceImpl {
	return &LoanServiceImpl{api: api, bus: bus}
}

func (s *LoanServiceImpl) List(ctx context.Context) ([]model.Loan, error) {
	var out convert.LoanList
	if err := s.api.Get(ctx, pathLoans, &out); err != nil {
		return nil, err
	}
	return convert.ToLoans(out.Loans), nil
}

// Create validates amount > 0 and a non-empty purpose before calling the backend.
func (s *LoanServiceImpl) Create(ctx context.Context, amount float64, purpose string) (model.Loan, error) {
	err := validation.Errors{
		"amount":  validation.Validate(amount, validation.Required, validation.Min(0.0)),
		"purpose": validation.Validate(purpose, validation.Required, validation.Length(1, 500)),
	}.Filter()
	if err != nil {
		return model.Loan{}, errs.NewValidation(err)
	}

	var out convert.LoanEnvelope
	if err := s.api.Post(ctx, pathLoans, convert.CreateLoanRequest{Amount: amount, Purpose: purpose}, &out); err != nil {
		return model.Loan{}, err
	}
	loan := convert.ToLoan(out.Loan)
	publish(ctx, s.bus, events.LoansChanged, loan)
	return loan, nil
}

func (s *LoanServiceImpl) Get(ctx context.Context, id int64) (model.Loan, error) {
	if err := validateID(id); err != nil {
		return model.Loan{}, err
	}
	var out convert.LoanEnvelope
	if err := s.api.Get(ctx, fmt.Sprintf(pathLoanByID, id), &out); err != nil {
		return model.Loan{}, err
	}
	return convert.ToLoan(out.Loan), nil
}

func validateID(id int64) error {
	return errs.NewValidation(validation.Errors{
		"id": validation.Validate(id, validation.Required, validation.Min(int64(1))),
	}.Filter())
}
