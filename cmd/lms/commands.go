package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/and161185/lms-client/internal/apiclient"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/model"
	"github.com/and161185/lms-client/internal/routeguard"
	"github.com/and161185/lms-client/internal/session"
	"github.com/and161185/lms-client/internal/tokenstore"
)

// run dispatches one command. args[0] is the command name.
func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	rest := args[1:]
	switch args[0] {
	case "register":
		return a.cmdRegister(ctx, rest)
	case "login":
		return a.cmdLogin(ctx, rest)
	case "admin-login":
		return a.cmdAdminLogin(ctx, rest)
	case "forgot-password":
		return a.cmdForgot(ctx, rest)
	case "whoami":
		return a.cmdWhoami(ctx)
	case "status":
		return a.cmdStatus(ctx)
	case "logout":
		if err := a.sess.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")
		return nil
	case "loans":
		return a.cmdLoans(ctx, rest)
	case "profile":
		return a.cmdProfile(ctx, rest)
	case "admin":
		return a.cmdAdmin(ctx, rest)
	}
	return errUsage
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

type identityView struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Role             model.Role `json:"role"`
	ProfileCompleted bool       `json:"profile_completed"`
	Dashboard        string     `json:"dashboard"`
}

func viewOf(id model.Identity) identityView {
	return identityView{
		ID: id.ID, Username: id.Username, Email: id.Email, Role: id.Role,
		ProfileCompleted: id.ProfileCompleted, Dashboard: routeguard.DashboardVariant(id),
	}
}

// landed prints the identity and the view the user lands on.
func (a *app) landed(ctx context.Context, id model.Identity) {
	next := routeguard.Dashboard
	if id.NeedsProfile() {
		next = routeguard.Profile
	}
	a.nav.Go(ctx, next)
	printJSON(a.out, viewOf(id))
	fmt.Fprintf(a.errOut, "next: %s\n", next)
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := a.flags("register")
	u := fs.String("u", "", "username")
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	a.nav.Go(ctx, routeguard.Register)

	pending, err := a.sess.Register(ctx, *u, *e, *p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.errOut, "OTP sent to %s\n", pending.Email)

	var id model.Identity
	err = a.otpLoop(func(code string) error {
		var err error
		id, err = a.sess.VerifyOTPAndRegister(ctx, pending.RegistrationID, code)
		return err
	}, func() error {
		return a.sess.ResendOTP(ctx, pending.RegistrationID)
	})
	if err != nil {
		return err
	}
	a.landed(ctx, id)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := a.flags("login")
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	a.nav.Go(ctx, routeguard.Login)

	res, err := a.sess.Login(ctx, *u, *p)
	if err != nil {
		return err
	}
	switch r := res.(type) {
	case session.AuthenticatedResult:
		a.landed(ctx, r.Identity)
		return nil
	case session.OTPRequiredResult:
		fmt.Fprintf(a.errOut, "OTP sent to %s\n", r.Pending.Email)
		var id model.Identity
		err := a.otpLoop(func(code string) error {
			var err error
			id, err = a.sess.VerifyOTPAndLogin(ctx, r.Pending.LoginID, code)
			return err
		}, func() error {
			return a.sess.ResendLoginOTP(ctx, r.Pending.LoginID)
		})
		if err != nil {
			return err
		}
		a.landed(ctx, id)
		return nil
	}
	return fmt.Errorf("unexpected login result %T", res)
}

func (a *app) cmdAdminLogin(ctx context.Context, args []string) error {
	fs := a.flags("admin-login")
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	a.nav.Go(ctx, routeguard.AdminLogin)

	id, err := a.sess.AdminLogin(ctx, *u, *p)
	if err != nil {
		return err
	}
	a.landed(ctx, id)
	return nil
}

// cmdForgot always asks for the OTP so the output does not reveal whether the email exists.
func (a *app) cmdForgot(ctx context.Context, args []string) error {
	fs := a.flags("forgot-password")
	e := fs.String("e", "", "email")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	a.nav.Go(ctx, routeguard.ForgotPassword)

	msg, err := a.sess.StartPasswordReset(ctx, *e)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.errOut, msg)

	var resetToken string
	err = a.otpLoop(func(code string) error {
		p, _ := a.sess.PendingReset()
		var err error
		resetToken, err = a.sess.VerifyResetOTP(ctx, p.ResetID, code)
		if errors.Is(err, errs.ErrNoPendingFlow) {
			return &errs.APIError{Kind: errs.ErrInvalidOTP, Path: apiclient.PathForgotVerify}
		}
		return err
	}, func() error {
		msg, err := a.sess.ResendResetOTP(ctx, *e)
		if err == nil {
			fmt.Fprintln(a.errOut, msg)
		}
		return err
	})
	if err != nil {
		return err
	}

	for {
		pw, err := a.prompt("New password")
		if err != nil {
			return err
		}
		id, err := a.sess.CompleteReset(ctx, resetToken, pw)
		if errors.Is(err, errs.ErrValidation) {
			fmt.Fprintln(a.errOut, errs.Message(err))
			continue
		}
		if err != nil {
			return err
		}
		a.landed(ctx, id)
		return nil
	}
}

func (a *app) cmdWhoami(ctx context.Context) error {
	if err := a.sess.Startup(ctx); err != nil {
		return err
	}
	id, ok := a.sess.Identity()
	if !ok {
		return &errs.APIError{Kind: errs.ErrSessionExpired, Message: "Not logged in"}
	}
	printJSON(a.out, viewOf(id))
	return nil
}

type statusView struct {
	State          string        `json:"state"`
	Degraded       bool          `json:"degraded,omitempty"`
	Identity       *identityView `json:"identity,omitempty"`
	TokenHeld      bool          `json:"token_held"`
	TokenExpiresAt *time.Time    `json:"token_expires_at,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// cmdStatus reports the session even when the backend is unreachable.
func (a *app) cmdStatus(ctx context.Context) error {
	startErr := a.sess.Startup(ctx)
	snap := a.sess.Snapshot()
	v := statusView{State: snap.State.String(), Degraded: snap.Degraded}
	if snap.Identity != nil {
		iv := viewOf(*snap.Identity)
		v.Identity = &iv
	}
	tok, err := a.store.Get(ctx)
	if err != nil {
		return err
	}
	v.TokenHeld = tok != ""
	if exp, ok := tokenstore.ExpiresAt(tok); ok {
		v.TokenExpiresAt = &exp
	}
	if startErr != nil {
		v.Error = errs.Message(startErr)
	}
	printJSON(a.out, v)
	return nil
}
