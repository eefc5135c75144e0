package session

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/and161185/lms-client/internal/errs"
)

// MinPasswordLen is the minimum accepted length for a reset password.
const MinPasswordLen = 8

var otpRe = regexp.MustCompile(`^[0-9]{6}$`)

func validateRegister(username, email, password string) error {
	return errs.NewValidation(validation.Errors{
		"username": validation.Validate(username, validation.Required, validation.Length(0, 80)),
		"email":    validation.Validate(email, validation.Required, is.Email),
		"password": validation.Validate(password, validation.Required),
	}.Filter())
}

func validateLogin(username, password string) error {
	return errs.NewValidation(validation.Errors{
		"username": validation.Validate(username, validation.Required),
		"password": validation.Validate(password, validation.Required),
	}.Filter())
}

func validateOTP(otp string) error {
	return errs.NewValidation(validation.Errors{
		"otp": validation.Validate(otp, validation.Required, validation.Match(otpRe).Error("must be 6 digits")),
	}.Filter())
}

func validateEmail(email string) error {
	return errs.NewValidation(validation.Errors{
		"email": validation.Validate(email, validation.Required, is.Email),
	}.Filter())
}

func validateNewPassword(password string) error {
	return errs.NewValidation(validation.Errors{
		"new_password": validation.Validate(password, validation.Required,
			validation.Length(MinPasswordLen, 0).Error("must be at least 8 characters long")),
	}.Filter())
}
