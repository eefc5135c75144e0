// Package session owns the client's authentication state: the current identity,
// the pending OTP flows and the credential lifecycle.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/lms-client/internal/apiclient"
	"github.com/and161185/lms-client/internal/convert"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/limiter"
	"github.com/and161185/lms-client/internal/model"
	"github.com/and161185/lms-client/internal/routeguard"
	"github.com/and161185/lms-client/internal/tokenstore"
)

// State is the coarse session state.
type State int

const (
	StateAnonymous State = iota
	StateAwaitingOTP
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAwaitingOTP:
		return "awaiting-otp"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Snapshot is an immutable view of the machine.
type Snapshot struct {
	State    State
	Loading  bool
	Degraded bool // startup could not reach the backend; the credential was kept
	Identity *model.Identity
	Flow     model.FlowKind // active OTP flow, FlowNone unless State is StateAwaitingOTP
}

// API is the subset of *apiclient.Client the machine needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	SetInvalidator(inv apiclient.Invalidator)
}

// Machine is the session state machine. It is safe for concurrent use;
// network calls run without holding the lock.
type Machine struct {
	api    API
	tokens tokenstore.Store
	bus    *events.Bus
	limit  limiter.Limiter
	log    *zap.Logger

	mu       sync.Mutex
	loading  bool
	degraded bool
	identity *model.Identity
	active   model.FlowKind
	reg      *model.PendingRegistration
	login    *model.PendingLogin
	reset    *model.PendingReset

	unsub []func()
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(m *Machine) { m.log = log } }

// WithBus shares an event bus with services and views.
func WithBus(bus *events.Bus) Option { return func(m *Machine) { m.bus = bus } }

// WithLimiter replaces the default 60s resend cooldown.
func WithLimiter(l limiter.Limiter) Option { return func(m *Machine) { m.limit = l } }

// New builds a machine in the loading state and registers it as the API's invalidator.
func New(api API, tokens tokenstore.Store, opts ...Option) *Machine {
	m := &Machine{api: api, tokens: tokens, loading: true}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.bus == nil {
		m.bus = events.NewBus()
	}
	if m.limit == nil {
		m.limit = limiter.NewCooldown(limiter.DefaultCooldown)
	}
	api.SetInvalidator(m)
	m.unsub = append(m.unsub, m.bus.Subscribe(events.ProfileChanged, func(ctx context.Context, _ events.Event) {
		if _, err := m.RefreshIdentity(ctx); err != nil {
			m.log.Warn("refresh identity after profile change", zap.Error(err))
		}
	}))
	return m
}

// Close detaches the machine from the bus.
func (m *Machine) Close() {
	for _, u := range m.unsub {
		u()
	}
	m.unsub = nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{Loading: m.loading, Degraded: m.degraded}
	switch {
	case m.identity != nil:
		id := *m.identity
		s.State, s.Identity = StateAuthenticated, &id
	case m.active != model.FlowNone:
		s.State, s.Flow = StateAwaitingOTP, m.active
	}
	return s
}

// Loading reports whether the startup check is still unresolved.
func (m *Machine) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Identity returns the authenticated identity, if any.
func (m *Machine) Identity() (model.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return model.Identity{}, false
	}
	return *m.identity, true
}

var _ routeguard.Session = (*Machine)(nil)

// Subscribe calls fn with a fresh snapshot after every transition.
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return m.bus.Subscribe(events.SessionChanged, func(_ context.Context, ev events.Event) {
		if s, ok := ev.Payload.(Snapshot); ok {
			fn(s)
		}
	})
}

func (m *Machine) changed(ctx context.Context) {
	m.bus.Publish(ctx, events.Event{Topic: events.SessionChanged, Payload: m.Snapshot()})
}

// Startup resolves the initial state from the stored credential.
// A network or server failure keeps the credential and marks the snapshot degraded;
// Startup may be run again later.
func (m *Machine) Startup(ctx context.Context) error {
	defer m.changed(ctx)

	tok, err := m.tokens.Get(ctx)
	if err != nil {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		return err
	}
	if tok == "" {
		m.mu.Lock()
		m.loading, m.degraded, m.identity = false, false, nil
		m.mu.Unlock()
		return nil
	}

	id, err := m.fetchIdentity(ctx, tok)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	switch {
	case err == nil:
		m.degraded = false
		m.identity = &id
		m.clearFlowsLocked(ctx)
		return nil
	case errors.Is(err, errs.ErrSessionExpired):
		// the API client already cleared the credential
		m.degraded = false
		m.identity = nil
		return nil
	default:
		m.degraded = true
		m.identity = nil
		m.log.Warn("startup identity check failed, keeping credential", zap.Error(err))
		return err
	}
}

// RefreshIdentity re-reads the identity without touching the credential.
func (m *Machine) RefreshIdentity(ctx context.Context) (model.Identity, error) {
	tok, err := m.tokens.Get(ctx)
	if err != nil {
		return model.Identity{}, err
	}
	if tok == "" {
		return model.Identity{}, &errs.APIError{Kind: errs.ErrSessionExpired, Path: apiclient.PathMe}
	}
	id, err := m.fetchIdentity(ctx, tok)
	if err != nil {
		return model.Identity{}, err
	}

	m.mu.Lock()
	// a logout or a new login may have landed meanwhile
	if cur, _ := m.tokens.Get(ctx); cur != tok {
		m.mu.Unlock()
		return id, nil
	}
	m.identity = &id
	m.loading, m.degraded = false, false
	m.clearFlowsLocked(ctx)
	m.mu.Unlock()

	m.changed(ctx)
	return id, nil
}

func (m *Machine) fetchIdentity(ctx context.Context, tok string) (model.Identity, error) {
	var resp struct {
		User *convert.User `json:"user"`
	}
	if err := m.api.Get(ctx, apiclient.PathMe, &resp); err != nil {
		return model.Identity{}, err
	}
	id, err := convert.ToIdentity(resp.User)
	if err != nil {
		return model.Identity{}, &errs.APIError{Kind: errs.ErrServer, Path: apiclient.PathMe,
			Message: "Invalid response from server", Err: err}
	}
	m.log.Debug("identity confirmed", zap.Int64("user_id", id.ID), zap.Bool("token_held", tok != ""))
	return id, nil
}

// Logout clears the credential and identity. It is safe to call in any state.
func (m *Machine) Logout(ctx context.Context) error {
	err := m.tokens.Clear(ctx)
	if err != nil {
		m.log.Error("clear token on logout", zap.Error(err))
	}
	m.mu.Lock()
	m.identity = nil
	m.loading, m.degraded = false, false
	m.clearFlowsLocked(ctx)
	m.mu.Unlock()

	m.changed(ctx)
	return err
}

// Invalidate implements apiclient.Invalidator. The credential has already been cleared.
func (m *Machine) Invalidate(ctx context.Context, redirect bool) {
	m.mu.Lock()
	was := m.identity
	m.identity = nil
	m.loading, m.degraded = false, false
	m.mu.Unlock()

	if was != nil {
		m.log.Info("session invalidated", zap.Int64("user_id", was.ID))
	}
	m.changed(ctx)
	if redirect {
		m.bus.Publish(ctx, events.Event{Topic: events.Navigate, Payload: routeguard.Login})
	}
}

// CancelFlow drops the pending flow of kind. Cancelling an absent flow is a no-op.
func (m *Machine) CancelFlow(ctx context.Context, kind model.FlowKind) {
	m.mu.Lock()
	had := m.dropFlowLocked(ctx, kind)
	m.mu.Unlock()
	if had {
		m.changed(ctx)
	}
}
