// Package routeguard decides whether a view may be entered for the current session.
//
// Role checks are intentionally coarse: every protected route admits any
// authenticated identity and the shared dashboard picks the admin or standard
// rendering itself.
package routeguard

import (
	"strings"

	"github.com/and161185/lms-client/internal/model"
)

// View identifies a client view by its path.
type View string

const (
	Landing        View = "/"
	Login          View = "/login"
	Register       View = "/register"
	ForgotPassword View = "/forgot-password"
	AdminLogin     View = "/admin/login"
	Dashboard      View = "/dashboard"
	Profile        View = "/profile"
	Loans          View = "/loans"
	LoanDetail     View = "/loans/:id"
)

// Access is the authentication requirement of a route.
type Access int

const (
	// Public routes are reachable by everyone.
	Public Access = iota
	// AnonymousOnly routes bounce authenticated sessions to the dashboard.
	AnonymousOnly
	// Protected routes need an authenticated identity.
	Protected
)

// Route pairs a view with its requirement. RequiredRole is advisory (see package doc).
type Route struct {
	View         View
	Access       Access
	RequiredRole model.Role
}

// Routes is the client route table.
var Routes = []Route{
	{View: Landing, Access: AnonymousOnly},
	{View: Login, Access: AnonymousOnly},
	{View: Register, Access: AnonymousOnly},
	{View: ForgotPassword, Access: AnonymousOnly},
	{View: AdminLogin, Access: AnonymousOnly},
	{View: Dashboard, Access: Protected},
	{View: Profile, Access: Protected},
	{View: Loans, Access: Protected},
	{View: LoanDetail, Access: Protected},
}

// Lookup resolves a concrete path such as "/loans/12" to its route.
func Lookup(path string) (Route, bool) {
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	for _, r := range Routes {
		if r.View == View(path) {
			return r, true
		}
	}
	if rest, ok := strings.CutPrefix(path, "/loans/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return Route{View: LoanDetail, Access: Protected}, true
	}
	return Route{}, false
}

// Session is what the guard needs to know about the current session.
type Session interface {
	Loading() bool
	Identity() (model.Identity, bool)
}

// Outcome of a guard decision.
type Outcome int

const (
	// Wait means the startup check is still running; render a loading indicator.
	Wait Outcome = iota
	Allow
	Redirect
)

// Decision is the result of CanEnter. To is set only for Redirect.
type Decision struct {
	Outcome Outcome
	To      View
}

// CanEnter decides navigability of r for s.
func CanEnter(s Session, r Route) Decision {
	if s.Loading() {
		return Decision{Outcome: Wait}
	}
	id, authed := s.Identity()
	switch {
	case !authed && r.Access == Protected:
		return Decision{Outcome: Redirect, To: Login}
	case authed && r.Access == AnonymousOnly:
		return Decision{Outcome: Redirect, To: Dashboard}
	case authed && r.Access == Protected && id.NeedsProfile() && r.View != Profile:
		return Decision{Outcome: Redirect, To: Profile}
	}
	return Decision{Outcome: Allow}
}

// DashboardVariant picks the rendering of the shared dashboard route.
func DashboardVariant(id model.Identity) string {
	if id.IsAdmin() {
		return "admin"
	}
	return "user"
}

// FlowView returns the view that hosts an OTP flow.
func FlowView(k model.FlowKind) View {
	switch k {
	case model.FlowRegistration:
		return Register
	case model.FlowLogin:
		return Login
	case model.FlowReset:
		return ForgotPassword
	}
	return ""
}
