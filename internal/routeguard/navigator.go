package routeguard

import (
	"context"
	"sync"

	"github.com/and161185/lms-client/internal/events"
	"github.com/and161185/lms-client/internal/model"
)

// FlowCanceler drops a pending OTP flow.
type FlowCanceler interface {
	CancelFlow(ctx context.Context, kind model.FlowKind)
}

// Navigator tracks the current view and follows Navigate events.
type Navigator struct {
	mu       sync.RWMutex
	current  View
	history  []View
	onChange []changeHook
}

type changeHook func(ctx context.Context, from, to View)

// NewNavigator starts at view and follows events.Navigate on bus (bus may be nil).
func NewNavigator(start View, bus *events.Bus) *Navigator {
	n := &Navigator{current: start}
	if bus != nil {
		bus.Subscribe(events.Navigate, func(ctx context.Context, ev events.Event) {
			if to, ok := ev.Payload.(View); ok {
				n.Go(ctx, to)
			}
		})
	}
	return n
}

// Current returns the current view.
func (n *Navigator) Current() View {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// History returns every view visited after the start view.
func (n *Navigator) History() []View {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]View(nil), n.history...)
}

// OnAuthView reports whether the current view is a login or registration view.
func (n *Navigator) OnAuthView() bool {
	switch n.Current() {
	case Login, Register, AdminLogin:
		return true
	}
	return false
}

// OnChange registers fn to run after every view change.
func (n *Navigator) OnChange(fn func(ctx context.Context, from, to View)) {
	n.mu.Lock()
	n.onChange = append(n.onChange, fn)
	n.mu.Unlock()
}

// BindFlows cancels a pending OTP flow whenever the view leaves the flow's view.
func (n *Navigator) BindFlows(c FlowCanceler) {
	n.OnChange(func(ctx context.Context, from, to View) {
		for _, k := range []model.FlowKind{model.FlowRegistration, model.FlowLogin, model.FlowReset} {
			if v := FlowView(k); v == from && v != to {
				c.CancelFlow(ctx, k)
			}
		}
	})
}

// Go moves to view. Moving to the current view is a no-op.
func (n *Navigator) Go(ctx context.Context, to View) {
	n.mu.Lock()
	from := n.current
	if from == to {
		n.mu.Unlock()
		return
	}
	n.current = to
	n.history = append(n.history, to)
	hooks := append([]changeHook(nil), n.onChange...)
	n.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx, from, to)
	}
}
