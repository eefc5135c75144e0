// Package service wraps the loan, profile and admin review endpoints.
package service

import (
	"context"

	"github.com/and161185/lms-client/internal/events"
)

// API is the subset of *apiclient.Client used by services.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, in, out any) error
}

const (
	pathLoans         = "/loans"
	pathProfile       = "/profile"
	pathAdminPending  = "/admin/loans/pending"
	pathAdminReasons  = "/admin/rejection-reasons"
	pathAdminLoanByID = "/admin/loans/%d/%s"
	pathLoanByID      = "/loans/%d"
)

func publish(ctx context.Context, bus *events.Bus, t events.Topic, payload any) {
	if bus != nil {
		bus.Publish(ctx, events.Event{Topic: t, Payload: payload})
	}
}
