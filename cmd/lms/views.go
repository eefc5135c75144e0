package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/model"
	"github.com/and161185/lms-client/internal/routeguard"
)

func (a *app) cmdLoans(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		if err := a.enter(ctx, string(routeguard.Loans)); err != nil {
			return err
		}
		loans, err := a.loans.List(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, loans)
		return nil

	case "create":
		fs := a.flags("loans create")
		amount := fs.Float64("amount", 0, "amount")
		purpose := fs.String("purpose", "", "purpose")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		if err := a.enter(ctx, string(routeguard.Loans)); err != nil {
			return err
		}
		loan, err := a.loans.Create(ctx, *amount, *purpose)
		if err != nil {
			return err
		}
		printJSON(a.out, loan)
		return nil

	case "get":
		fs := a.flags("loans get")
		id := fs.Int64("id", 0, "loan id")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		if err := a.enter(ctx, "/loans/"+strconv.FormatInt(*id, 10)); err != nil {
			return err
		}
		loan, err := a.loans.Get(ctx, *id)
		if err != nil {
			return err
		}
		printJSON(a.out, loan)
		return nil
	}
	return errUsage
}

func (a *app) cmdProfile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}
	switch args[0] {
	case "show":
		if err := a.enter(ctx, string(routeguard.Profile)); err != nil {
			return err
		}
		p, done, err := a.profile.Get(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, map[string]any{"profile": p, "profile_completed": done})
		return nil

	case "save":
		fs := a.flags("profile save")
		var p model.Profile
		fs.StringVar(&p.FirstName, "first", "", "first name")
		fs.StringVar(&p.LastName, "last", "", "last name")
		fs.StringVar(&p.Phone, "phone", "", "phone")
		fs.StringVar(&p.Address, "address", "", "address")
		dob := fs.String("dob", "", "date of birth YYYY-MM-DD")
		fs.StringVar(&p.EmploymentStatus, "employment", "", "employment status")
		fs.Float64Var(&p.AnnualIncome, "income", 0, "annual income")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		if *dob != "" {
			t, err := time.Parse("2006-01-02", *dob)
			if err != nil {
				return errs.NewValidation(fmt.Errorf("date_of_birth: %w", err))
			}
			p.DateOfBirth = t
		}
		if err := a.enter(ctx, string(routeguard.Profile)); err != nil {
			return err
		}
		saved, err := a.profile.Save(ctx, p)
		if err != nil {
			return err
		}
		printJSON(a.out, saved)
		if id, ok := a.sess.Identity(); ok && !id.NeedsProfile() {
			fmt.Fprintf(a.errOut, "next: %s\n", routeguard.Dashboard)
		}
		return nil
	}
	return errUsage
}

func (a *app) cmdAdmin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.enter(ctx, string(routeguard.Dashboard)); err != nil {
		return err
	}
	if id, _ := a.sess.Identity(); !id.IsAdmin() {
		return &errs.APIError{Kind: errs.ErrForbidden, Message: "Admin access required"}
	}

	switch args[0] {
	case "pending":
		loans, err := a.admin.Pending(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, loans)
		return nil

	case "reasons":
		reasons, err := a.admin.Reasons(ctx)
		if err != nil {
			return err
		}
		printJSON(a.out, reasons)
		return nil

	case "approve", "reject":
		fs := a.flags("admin " + args[0])
		id := fs.Int64("id", 0, "loan id")
		notes := fs.String("notes", "", "admin notes")
		reason := fs.String("reason", "", "rejection reason code")
		if err := fs.Parse(args[1:]); err != nil {
			return errUsage
		}
		var (
			loan model.Loan
			err  error
		)
		if args[0] == "approve" {
			loan, err = a.admin.Approve(ctx, *id, *notes)
		} else {
			loan, err = a.admin.Reject(ctx, *id, model.RejectionCode(*reason), *notes)
		}
		if err != nil {
			return err
		}
		printJSON(a.out, loan)
		return nil
	}
	return errUsage
}
