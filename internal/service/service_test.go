package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/lms-client/internal/apiclient"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/fakeapi"
	"github.com/and161185/lms-client/internal/model"
	"github.com/and161185/lms-client/internal/tokenstore"
)

func clientFor(t *testing.T, base, token string) *apiclient.Client {
	t.Helper()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), token))
	c, err := apiclient.New(base, store, apiclient.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return c
}

func count(bus *events.Bus, topic events.Topic) *int {
	n := new(int)
	bus.Subscribe(topic, func(context.Context, events.Event) { *n++ })
	return n
}

func TestLoanService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := fakeapi.New()
	base := be.Start(t)
	uid := be.AddUser("alice", "a@x.com", "secret123", "user", true)
	bus := events.NewBus()
	changed := count(bus, events.LoansChanged)
	svc := NewLoanService(clientFor(t, base, be.Issue(uid)), bus)

	_, err := svc.Create(ctx, 0, "")
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields, "amount")
	require.Contains(t, ve.Fields, "purpose")
	require.Zero(t, be.Calls(http.MethodPost, "/loans"))

	_, err = svc.Create(ctx, -5, "car")
	require.ErrorIs(t, err, errs.ErrValidation)

	loan, err := svc.Create(ctx, 1500.5, "car")
	require.NoError(t, err)
	require.Equal(t, model.LoanPending, loan.Status)
	require.Equal(t, 1, *changed)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, loan.ID, list[0].ID)

	got, err := svc.Get(ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, "car", got.Purpose)

	_, err = svc.Get(ctx, loan.ID+1000)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.Get(ctx, 0)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestLoanService_ProfileRequired(t *testing.T) {
	t.Parallel()
	be := fakeapi.New()
	base := be.Start(t)
	uid := be.AddUser("bob", "b@x.com", "secret123", "user", false)
	svc := NewLoanService(clientFor(t, base, be.Issue(uid)), nil)

	_, err := svc.Create(context.Background(), 100, "laptop")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, "Please complete your profile first", errs.Message(err))
}

func TestProfileService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := fakeapi.New()
	base := be.Start(t)
	uid := be.AddUser("bob", "b@x.com", "secret123", "user", false)
	bus := events.NewBus()
	changed := count(bus, events.ProfileChanged)
	svc := NewProfileService(clientFor(t, base, be.Issue(uid)), bus)

	p, done, err := svc.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, p)
	require.False(t, done)

	_, err = svc.Save(ctx, model.Profile{FirstName: "Bob", AnnualIncome: -1})
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields, "annual_income")
	require.Contains(t, ve.Fields, "date_of_birth")
	require.Zero(t, be.Calls(http.MethodPut, "/profile"))
	require.Zero(t, *changed)

	in := model.Profile{
		FirstName: "Bob", LastName: "Builder", Phone: "+15550100", Address: "1 Main St",
		DateOfBirth:      time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC),
		EmploymentStatus: "employed", AnnualIncome: 0,
	}
	saved, err := svc.Save(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "Builder", saved.LastName)
	require.True(t, saved.DateOfBirth.Equal(in.DateOfBirth))
	require.Equal(t, 1, *changed)
	require.True(t, be.ProfileCompleted(uid))

	p, done, err = svc.Get(ctx)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "1 Main St", p.Address)
}

func TestAdminService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	be := fakeapi.New()
	base := be.Start(t)
	uid := be.AddUser("alice", "a@x.com", "secret123", "user", true)
	aid := be.AddUser("root", "root@x.com", "adminpass", "admin", false)
	bus := events.NewBus()
	changed := count(bus, events.LoansChanged)

	loans := NewLoanService(clientFor(t, base, be.Issue(uid)), nil)
	first, err := loans.Create(ctx, 1000, "car")
	require.NoError(t, err)
	second, err := loans.Create(ctx, 2000, "boat")
	require.NoError(t, err)

	_, err = NewAdminService(clientFor(t, base, be.Issue(uid)), nil).Pending(ctx)
	require.ErrorIs(t, err, errs.ErrForbidden)

	svc := NewAdminService(clientFor(t, base, be.Issue(aid)), bus)
	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.NotNil(t, pending[0].Applicant)
	require.Equal(t, "alice", pending[0].Applicant.Username)

	reasons, err := svc.Reasons(ctx)
	require.NoError(t, err)
	require.Len(t, reasons, len(model.RejectionCodes))

	_, err = svc.Reject(ctx, first.ID, model.ReasonAutoRejected, "")
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = svc.Reject(ctx, first.ID, "", "")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Zero(t, *changed)

	rejected, err := svc.Reject(ctx, first.ID, model.ReasonExceedsLimit, "too much")
	require.NoError(t, err)
	require.Equal(t, model.LoanRejected, rejected.Status)
	require.Equal(t, model.ReasonExceedsLimit, rejected.RejectionReason)
	require.Equal(t, "too much", rejected.AdminNotes)

	approved, err := svc.Approve(ctx, second.ID, "")
	require.NoError(t, err)
	require.Equal(t, model.LoanApproved, approved.Status)
	require.Equal(t, aid, approved.ReviewedBy)
	require.Equal(t, 2, *changed)

	_, err = svc.Approve(ctx, second.ID, "")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, "Loan is not pending", errs.Message(err))

	pending, err = svc.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}
