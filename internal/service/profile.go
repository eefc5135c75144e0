package service

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/and161185/lms-client/internal/convert"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/model"
)

// ProfileService defines profile read and save.
type ProfileService interface {
	// Get returns the stored profile (nil if none yet) and the completion flag.
	Get(ctx context.Context) (*model.Profile, bool, error)
	// Save stores the profile and publishes ProfileChanged.
	Save(ctx context.Context, p model.Profile) (*model.Profile, error)
}

type ProfileServiceImpl struct {
	api API
	bus *events.Bus
}

// NewProfileService constructs ProfileService; bus may be nil.
func NewProfileService(api API, bus *events.Bus) *ProfileServiceImpl {
	return &ProfileServiceImpl{api: api, bus: bus}
}

func (s *ProfileServiceImpl) Get(ctx context.Context) (*model.Profile, bool, error) {
	var out convert.ProfileEnvelope
	if err := s.api.Get(ctx, pathProfile, &out); err != nil {
		return nil, false, err
	}
	p, err := convert.ToProfile(out.Profile)
	if err != nil {
		return nil, false, &errs.APIError{Kind: errs.ErrServer, Path: pathProfile, Message: "Invalid response from server", Err: err}
	}
	return p, out.ProfileCompleted, nil
}

// Save requires every field; annual income may be zero but not negative.
func (s *ProfileServiceImpl) Save(ctx context.Context, p model.Profile) (*model.Profile, error) {
	err := validation.Errors{
		"first_name":        validation.Validate(p.FirstName, validation.Required, validation.Length(1, 100)),
		"last_name":         validation.Validate(p.LastName, validation.Required, validation.Length(1, 100)),
		"phone":             validation.Validate(p.Phone, validation.Required, validation.Length(5, 20)),
		"address":           validation.Validate(p.Address, validation.Required),
		"date_of_birth":     validation.Validate(p.DateOfBirth, validation.Required),
		"employment_status": validation.Validate(p.EmploymentStatus, validation.Required),
		"annual_income":     validation.Validate(p.AnnualIncome, validation.Min(0.0)),
	}.Filter()
	if err != nil {
		return nil, errs.NewValidation(err)
	}

	var out convert.ProfileEnvelope
	if err := s.api.Put(ctx, pathProfile, convert.FromProfile(p), &out); err != nil {
		return nil, err
	}
	saved, err := convert.ToProfile(out.Profile)
	if err != nil {
		return nil, &errs.APIError{Kind: errs.ErrServer, Path: pathProfile, Message: "Invalid response from server", Err: err}
	}
	publish(ctx, s.bus, events.ProfileChanged, saved)
	return saved, nil
}
