package session

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lms-client/internal/apiclient"
	"github.com/and161185/lms-client/internal/convert"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/model"
)

// ResetNotice is shown after a reset start regardless of whether the email exists.
const ResetNotice = "If this email exists in our system, we have sent an OTP to your email."

const adminOnly = "Access denied. This is an admin-only login page."

// LoginResult is either AuthenticatedResult or OTPRequiredResult.
type LoginResult interface{ isLoginResult() }

// AuthenticatedResult means the login completed without a second factor.
type AuthenticatedResult struct{ Identity model.Identity }

// OTPRequiredResult means an OTP was sent and VerifyOTPAndLogin must follow.
type OTPRequiredResult struct{ Pending model.PendingLogin }

func (AuthenticatedResult) isLoginResult() {}
func (OTPRequiredResult) isLoginResult()   {}

func regKey(id int64) string       { return "registration:" + strconv.FormatInt(id, 10) }
func loginKey(id int64) string     { return "login:" + strconv.FormatInt(id, 10) }
func resetKey(email string) string { return "reset:" + email }

func noFlow(kind model.FlowKind, id any) error {
	return fmt.Errorf("%w: %s %v", errs.ErrNoPendingFlow, kind, id)
}

func badPayload(path string, err error) error {
	return &errs.APIError{Kind: errs.ErrServer, Status: http.StatusOK, Path: path,
		Message: "Invalid response from server", Err: err}
}

// refused maps a 2xx body carrying "success": false to an APIError of kind.
func refused(path string, resp convert.AuthResponse, kind error, msg string) error {
	if resp.Success == nil || *resp.Success {
		return nil
	}
	return &errs.APIError{Kind: kind, Status: http.StatusOK, Path: path, Message: msg}
}

// Register starts the registration flow.
func (m *Machine) Register(ctx context.Context, username, email, password string) (model.PendingRegistration, error) {
	if err := validateRegister(username, email, password); err != nil {
		return model.PendingRegistration{}, err
	}
	var resp convert.AuthResponse
	err := m.api.Post(ctx, apiclient.PathRegister, convert.RegisterRequest{Username: username, Email: email, Password: password}, &resp)
	if err != nil {
		return model.PendingRegistration{}, err
	}
	id, err := resp.PendingRegistrationID.Int64()
	if err != nil {
		return model.PendingRegistration{}, badPayload(apiclient.PathRegister, err)
	}
	p := model.PendingRegistration{RegistrationID: id, Email: email}
	if resp.Email != "" {
		p.Email = resp.Email
	}

	m.mu.Lock()
	if m.reg != nil && m.reg.RegistrationID != id {
		_ = m.limit.Forget(ctx, regKey(m.reg.RegistrationID))
	}
	m.reg, m.active = &p, model.FlowRegistration
	m.mu.Unlock()

	_ = m.limit.Sent(ctx, regKey(id))
	m.changed(ctx)
	return p, nil
}

// VerifyOTPAndRegister completes registration and authenticates.
func (m *Machine) VerifyOTPAndRegister(ctx context.Context, registrationID int64, otp string) (model.Identity, error) {
	if err := validateOTP(otp); err != nil {
		return model.Identity{}, err
	}
	m.mu.Lock()
	ok := m.reg != nil && m.reg.RegistrationID == registrationID
	m.mu.Unlock()
	if !ok {
		return model.Identity{}, noFlow(model.FlowRegistration, registrationID)
	}

	var resp convert.AuthResponse
	err := m.api.Post(ctx, apiclient.PathVerifyOTP, convert.OTPRequest{PendingRegistrationID: registrationID, OTP: otp}, &resp)
	if err != nil {
		return model.Identity{}, err
	}
	return m.authenticate(ctx, apiclient.PathVerifyOTP, resp)
}

// ResendOTP re-sends the registration OTP, subject to the cooldown.
func (m *Machine) ResendOTP(ctx context.Context, registrationID int64) error {
	m.mu.Lock()
	ok := m.reg != nil && m.reg.RegistrationID == registrationID
	m.mu.Unlock()
	if !ok {
		return noFlow(model.FlowRegistration, registrationID)
	}
	return m.resend(ctx, regKey(registrationID), func() error {
		return m.api.Post(ctx, apiclient.PathResendOTP, convert.OTPRequest{PendingRegistrationID: registrationID}, nil)
	})
}

// Login starts a login. Accounts the backend lets skip OTP are authenticated
// immediately; anything else enters the login OTP flow.
func (m *Machine) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if err := validateLogin(username, password); err != nil {
		return nil, err
	}
	var resp convert.AuthResponse
	if err := m.api.Post(ctx, apiclient.PathLogin, convert.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}

	direct := resp.RequiresOTP != nil && !*resp.RequiresOTP
	if resp.RequiresOTP == nil && resp.AccessToken != "" && resp.PendingLoginID == "" {
		direct = true
	}
	if direct {
		id, err := convert.ToIdentity(resp.User)
		if err != nil {
			return nil, badPayload(apiclient.PathLogin, err)
		}
		if !id.IsAdmin() {
			m.log.Error("backend skipped OTP for a non-admin account", zap.Int64("user_id", id.ID))
			return nil, &errs.APIError{Kind: errs.ErrServer, Status: http.StatusOK, Path: apiclient.PathLogin,
				Message: "Unexpected login response from server"}
		}
		id, err = m.authenticate(ctx, apiclient.PathLogin, resp)
		if err != nil {
			return nil, err
		}
		return AuthenticatedResult{Identity: id}, nil
	}

	loginID, err := resp.PendingLoginID.Int64()
	if err != nil {
		return nil, badPayload(apiclient.PathLogin, err)
	}
	p := model.PendingLogin{LoginID: loginID, Email: resp.Email}

	m.mu.Lock()
	if m.login != nil && m.login.LoginID != loginID {
		_ = m.limit.Forget(ctx, loginKey(m.login.LoginID))
	}
	m.login, m.active = &p, model.FlowLogin
	m.mu.Unlock()

	_ = m.limit.Sent(ctx, loginKey(loginID))
	m.changed(ctx)
	return OTPRequiredResult{Pending: p}, nil
}

// AdminLogin authenticates through the admin-only endpoint.
func (m *Machine) AdminLogin(ctx context.Context, username, password string) (model.Identity, error) {
	if err := validateLogin(username, password); err != nil {
		return model.Identity{}, err
	}
	var resp convert.AuthResponse
	if err := m.api.Post(ctx, apiclient.PathAdminLogin, convert.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return model.Identity{}, err
	}
	id, err := convert.ToIdentity(resp.User)
	if err != nil {
		return model.Identity{}, badPayload(apiclient.PathAdminLogin, err)
	}
	if !id.IsAdmin() {
		return model.Identity{}, &errs.APIError{Kind: errs.ErrForbidden, Status: http.StatusOK,
			Path: apiclient.PathAdminLogin, Message: adminOnly}
	}
	if _, err := m.authenticate(ctx, apiclient.PathAdminLogin, resp); err != nil {
		return model.Identity{}, err
	}

	fresh, err := m.RefreshIdentity(ctx)
	if err != nil {
		if apiclient.IsSessionExpired(err) {
			return model.Identity{}, err
		}
		m.log.Warn("identity refresh after admin login failed", zap.Error(err))
		return id, nil
	}
	return fresh, nil
}

// VerifyOTPAndLogin completes a login started by Login.
func (m *Machine) VerifyOTPAndLogin(ctx context.Context, loginID int64, otp string) (model.Identity, error) {
	if err := validateOTP(otp); err != nil {
		return model.Identity{}, err
	}
	m.mu.Lock()
	ok := m.login != nil && m.login.LoginID == loginID
	m.mu.Unlock()
	if !ok {
		return model.Identity{}, noFlow(model.FlowLogin, loginID)
	}

	var resp convert.AuthResponse
	err := m.api.Post(ctx, apiclient.PathVerifyLoginOTP, convert.OTPRequest{PendingLoginID: loginID, OTP: otp}, &resp)
	if err != nil {
		return model.Identity{}, err
	}
	return m.authenticate(ctx, apiclient.PathVerifyLoginOTP, resp)
}

// ResendLoginOTP re-sends the login OTP, subject to the cooldown.
func (m *Machine) ResendLoginOTP(ctx context.Context, loginID int64) error {
	m.mu.Lock()
	ok := m.login != nil && m.login.LoginID == loginID
	m.mu.Unlock()
	if !ok {
		return noFlow(model.FlowLogin, loginID)
	}
	return m.resend(ctx, loginKey(loginID), func() error {
		return m.api.Post(ctx, apiclient.PathResendLoginOTP, convert.OTPRequest{PendingLoginID: loginID}, nil)
	})
}

// StartPasswordReset requests a reset OTP. The returned notice does not reveal
// whether the email exists; the reset flow only advances when the backend issues a reset id.
func (m *Machine) StartPasswordReset(ctx context.Context, email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	msg, err := m.forgot(ctx, email)
	if err != nil {
		return "", err
	}
	_ = m.limit.Sent(ctx, resetKey(email))
	return msg, nil
}

// ResendResetOTP repeats the reset start for email, subject to the cooldown.
// A newly issued reset id replaces the pending one.
func (m *Machine) ResendResetOTP(ctx context.Context, email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}
	var msg string
	err := m.resend(ctx, resetKey(email), func() error {
		var err error
		msg, err = m.forgot(ctx, email)
		return err
	})
	return msg, err
}

func (m *Machine) forgot(ctx context.Context, email string) (string, error) {
	var resp convert.AuthResponse
	if err := m.api.Post(ctx, apiclient.PathForgot, convert.ForgotRequest{Email: email}, &resp); err != nil {
		return "", err
	}
	if err := refused(apiclient.PathForgot, resp, errs.ErrServer, "Failed to send OTP. Please try again."); err != nil {
		return "", err
	}
	m.mu.Lock()
	var changed bool
	switch {
	case resp.ResetID != "":
		if m.reset != nil && m.reset.Email != email {
			m.dropFlowLocked(ctx, model.FlowReset)
		}
		m.reset, m.active = &model.PendingReset{ResetID: string(resp.ResetID), Email: email}, model.FlowReset
		changed = true
	case m.reset != nil && m.reset.Email != email:
		// a pending reset belongs to the email that started it
		changed = m.dropFlowLocked(ctx, model.FlowReset)
	}
	m.mu.Unlock()
	if changed {
		m.changed(ctx)
	}
	if resp.Message != "" {
		return resp.Message, nil
	}
	return ResetNotice, nil
}

// VerifyResetOTP exchanges the reset OTP for a single-use reset token.
// The user is not authenticated yet.
func (m *Machine) VerifyResetOTP(ctx context.Context, resetID, otp string) (string, error) {
	if err := validateOTP(otp); err != nil {
		return "", err
	}
	m.mu.Lock()
	ok := m.reset != nil && m.reset.ResetID == resetID && !m.reset.Verified()
	m.mu.Unlock()
	if !ok {
		return "", noFlow(model.FlowReset, resetID)
	}

	var resp convert.AuthResponse
	err := m.api.Post(ctx, apiclient.PathForgotVerify, convert.OTPRequest{ResetID: resetID, OTP: otp}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Invalid OTP. Please try again."
		}
		return "", refused(apiclient.PathForgotVerify, resp, errs.ErrInvalidOTP, msg)
	}
	if resp.ResetToken == "" {
		return "", badPayload(apiclient.PathForgotVerify, fmt.Errorf("missing reset_token"))
	}

	m.mu.Lock()
	if m.reset != nil && m.reset.ResetID == resetID {
		m.reset.ResetToken = resp.ResetToken
	}
	m.mu.Unlock()
	m.changed(ctx)
	return resp.ResetToken, nil
}

// CompleteReset sets the new password and logs the user in.
func (m *Machine) CompleteReset(ctx context.Context, resetToken, newPassword string) (model.Identity, error) {
	if err := validateNewPassword(newPassword); err != nil {
		return model.Identity{}, err
	}
	m.mu.Lock()
	ok := m.reset != nil && m.reset.Verified() && m.reset.ResetToken == resetToken
	m.mu.Unlock()
	if !ok {
		return model.Identity{}, noFlow(model.FlowReset, "token")
	}

	var resp convert.AuthResponse
	err := m.api.Post(ctx, apiclient.PathForgotReset, convert.ResetRequest{ResetToken: resetToken, NewPassword: newPassword}, &resp)
	if err != nil {
		return model.Identity{}, err
	}
	return m.authenticate(ctx, apiclient.PathForgotReset, resp)
}

// authenticate stores the credential from resp and enters the authenticated state.
func (m *Machine) authenticate(ctx context.Context, path string, resp convert.AuthResponse) (model.Identity, error) {
	if resp.AccessToken == "" {
		return model.Identity{}, badPayload(path, fmt.Errorf("missing access_token"))
	}
	id, err := convert.ToIdentity(resp.User)
	if err != nil {
		return model.Identity{}, badPayload(path, err)
	}
	if err := m.tokens.Set(ctx, resp.AccessToken); err != nil {
		return model.Identity{}, fmt.Errorf("store token: %w", err)
	}

	m.mu.Lock()
	m.identity = &id
	m.loading, m.degraded = false, false
	m.clearFlowsLocked(ctx)
	m.mu.Unlock()

	m.log.Info("authenticated", zap.String("via", path), zap.Int64("user_id", id.ID), zap.String("role", string(id.Role)))
	m.changed(ctx)
	return id, nil
}

func (m *Machine) resend(ctx context.Context, key string, send func() error) error {
	ok, wait, err := m.limit.Allow(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: please wait %s before requesting a new code", errs.ErrRateLimited, wait.Round(time.Second))
	}
	if err := send(); err != nil {
		return err
	}
	return m.limit.Sent(ctx, key)
}

func (m *Machine) clearFlowsLocked(ctx context.Context) {
	for _, k := range []model.FlowKind{model.FlowRegistration, model.FlowLogin, model.FlowReset} {
		m.dropFlowLocked(ctx, k)
	}
}

// dropFlowLocked removes the pending flow of kind and reports whether one existed.
func (m *Machine) dropFlowLocked(ctx context.Context, kind model.FlowKind) bool {
	var had bool
	switch kind {
	case model.FlowRegistration:
		if had = m.reg != nil; had {
			_ = m.limit.Forget(ctx, regKey(m.reg.RegistrationID))
			m.reg = nil
		}
	case model.FlowLogin:
		if had = m.login != nil; had {
			_ = m.limit.Forget(ctx, loginKey(m.login.LoginID))
			m.login = nil
		}
	case model.FlowReset:
		if had = m.reset != nil; had {
			_ = m.limit.Forget(ctx, resetKey(m.reset.Email))
			m.reset = nil
		}
	}
	if m.active == kind || !m.pendingLocked(m.active) {
		m.active = model.FlowNone
		for _, k := range []model.FlowKind{model.FlowReset, model.FlowLogin, model.FlowRegistration} {
			if m.pendingLocked(k) {
				m.active = k
				break
			}
		}
	}
	return had
}

func (m *Machine) pendingLocked(kind model.FlowKind) bool {
	switch kind {
	case model.FlowRegistration:
		return m.reg != nil
	case model.FlowLogin:
		return m.login != nil
	case model.FlowReset:
		return m.reset != nil
	}
	return false
}

// PendingRegistration returns the registration awaiting its OTP.
func (m *Machine) PendingRegistration() (model.PendingRegistration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reg == nil {
		return model.PendingRegistration{}, false
	}
	return *m.reg, true
}

// PendingLogin returns the login awaiting its OTP.
func (m *Machine) PendingLogin() (model.PendingLogin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.login == nil {
		return model.PendingLogin{}, false
	}
	return *m.login, true
}

// PendingReset returns the reset in progress.
func (m *Machine) PendingReset() (model.PendingReset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reset == nil {
		return model.PendingReset{}, false
	}
	return *m.reset, true
}
