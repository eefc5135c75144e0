package routeguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/model"
)

type fakeSession struct {
	loading bool
	id      *model.Identity
}

func (f fakeSession) Loading() bool { return f.loading }

func (f fakeSession) Identity() (model.Identity, bool) {
	if f.id == nil {
		return model.Identity{}, false
	}
	return *f.id, true
}

func TestLookup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want View
		ok   bool
	}{
		{"/", Landing, true},
		{"/login", Login, true},
		{"/login/", Login, true},
		{"/admin/login", AdminLogin, true},
		{"/loans", Loans, true},
		{"/loans/12", LoanDetail, true},
		{"/loans/12/edit", "", false},
		{"/nowhere", "", false},
	}
	for _, tt := range tests {
		r, ok := Lookup(tt.path)
		require.Equal(t, tt.ok, ok, tt.path)
		require.Equal(t, tt.want, r.View, tt.path)
	}
}

func TestCanEnter(t *testing.T) {
	t.Parallel()
	user := &model.Identity{ID: 1, Role: model.RoleUser, ProfileCompleted: true}
	fresh := &model.Identity{ID: 2, Role: model.RoleUser}
	admin := &model.Identity{ID: 3, Role: model.RoleAdmin}

	route := func(v View) Route {
		r, ok := Lookup(string(v))
		require.True(t, ok)
		return r
	}

	tests := []struct {
		name string
		s    fakeSession
		r    Route
		want Decision
	}{
		{"loading", fakeSession{loading: true, id: user}, route(Dashboard), Decision{Outcome: Wait}},
		{"anonymous protected", fakeSession{}, route(Loans), Decision{Outcome: Redirect, To: Login}},
		{"anonymous login", fakeSession{}, route(Login), Decision{Outcome: Allow}},
		{"authed anon-only", fakeSession{id: user}, route(Register), Decision{Outcome: Redirect, To: Dashboard}},
		{"authed landing", fakeSession{id: admin}, route(Landing), Decision{Outcome: Redirect, To: Dashboard}},
		{"user dashboard", fakeSession{id: user}, route(Dashboard), Decision{Outcome: Allow}},
		{"incomplete profile", fakeSession{id: fresh}, route(Loans), Decision{Outcome: Redirect, To: Profile}},
		{"incomplete profile on profile", fakeSession{id: fresh}, route(Profile), Decision{Outcome: Allow}},
		{"admin without profile", fakeSession{id: admin}, route(LoanDetail), Decision{Outcome: Allow}},
		{"role is advisory", fakeSession{id: user}, Route{View: Dashboard, Access: Protected, RequiredRole: model.RoleAdmin}, Decision{Outcome: Allow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CanEnter(tt.s, tt.r))
		})
	}
}

type cancelRec struct{ kinds []model.FlowKind }

func (c *cancelRec) CancelFlow(_ context.Context, k model.FlowKind) { c.kinds = append(c.kinds, k) }

func TestNavigator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := events.NewBus()
	n := NewNavigator(Login, bus)
	rec := &cancelRec{}
	n.BindFlows(rec)
	require.True(t, n.OnAuthView())

	n.Go(ctx, Login)
	require.Empty(t, n.History())

	n.Go(ctx, ForgotPassword)
	require.Equal(t, []model.FlowKind{model.FlowLogin}, rec.kinds)
	require.False(t, n.OnAuthView())

	bus.Publish(ctx, events.Event{Topic: events.Navigate, Payload: Dashboard})
	require.Equal(t, Dashboard, n.Current())
	require.Equal(t, []model.FlowKind{model.FlowLogin, model.FlowReset}, rec.kinds)

	bus.Publish(ctx, events.Event{Topic: events.Navigate, Payload: "not a view"})
	require.Equal(t, []View{ForgotPassword, Dashboard}, n.History())
}
