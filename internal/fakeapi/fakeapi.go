// Package fakeapi is an in-memory stand-in for the loan API used by client tests.
package fakeapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/and161185/lms-client/internal/convert"
)

// OTP is the code every flow accepts.
const OTP = "123456"

// MaxAttempts is the number of wrong OTPs tolerated per pending flow.
const MaxAttempts = 5

type user struct {
	convert.User
	password string
	profile  *convert.Profile
}

type pending struct {
	userID   int64
	username string
	email    string
	password string
	attempts int
}

type override struct {
	status int
	body   any
}

// Backend holds all server state. Zero value is not usable; call New.
type Backend struct {
	// AdminSkipsOTP makes POST /auth/login authenticate admins directly with requires_otp:false.
	AdminSkipsOTP bool
	// LoginSkipsOTPForUsers makes the login endpoint skip OTP for regular users too (contract violation).
	LoginSkipsOTPForUsers bool

	mu          sync.Mutex
	e           *echo.Echo
	nextID      int64
	users       map[int64]*user
	tokens      map[string]int64
	regs        map[int64]*pending
	logins      map[int64]*pending
	resets      map[string]*pending
	resetTokens map[string]int64
	loans       []*convert.Loan
	overrides   map[string]override
	calls       map[string]int
	authHeaders map[string]string
}

// New builds a backend with routes under /api.
func New() *Backend {
	b := &Backend{
		users:       map[int64]*user{},
		tokens:      map[string]int64{},
		regs:        map[int64]*pending{},
		logins:      map[int64]*pending{},
		resets:      map[string]*pending{},
		resetTokens: map[string]int64{},
		overrides:   map[string]override{},
		calls:       map[string]int{},
		authHeaders: map[string]string{},
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(b.track)

	api := e.Group("/api")
	api.POST("/auth/register", b.register)
	api.POST("/auth/resend-otp", b.resendRegistration)
	api.POST("/auth/verify-otp", b.verifyRegistration)
	api.POST("/auth/admin/login", b.adminLogin)
	api.POST("/auth/login", b.login)
	api.POST("/auth/resend-login-otp", b.resendLogin)
	api.POST("/auth/verify-login-otp", b.verifyLogin)
	api.GET("/auth/me", b.me)
	api.POST("/auth/forgot-password", b.forgot)
	api.POST("/auth/forgot-password/verify", b.forgotVerify)
	api.POST("/auth/forgot-password/reset", b.forgotReset)

	api.GET("/loans", b.listLoans)
	api.POST("/loans", b.createLoan)
	api.GET("/loans/:id", b.getLoan)
	api.GET("/profile", b.getProfile)
	api.PUT("/profile", b.saveProfile)
	api.POST("/profile", b.saveProfile)
	api.GET("/admin/loans/pending", b.pendingLoans)
	api.POST("/admin/loans/:id/approve", b.approve)
	api.POST("/admin/loans/:id/reject", b.reject)
	api.GET("/admin/rejection-reasons", b.reasons)
	b.e = e
	return b
}

// Cleaner is satisfied by *testing.T.
type Cleaner interface {
	Cleanup(func())
}

// Start serves the backend until c runs its cleanups and returns the API base URL.
func (b *Backend) Start(c Cleaner) string {
	srv := httptest.NewServer(b.e)
	c.Cleanup(srv.Close)
	return srv.URL + "/api"
}

// ServeHTTP lets the backend be mounted directly.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) { b.e.ServeHTTP(w, r) }

// AddUser registers an account directly and returns its id.
func (b *Backend) AddUser(username, email, password, role string, profileCompleted bool) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(username, email, password, role, profileCompleted)
}

func (b *Backend) addUserLocked(username, email, password, role string, profileCompleted bool) int64 {
	b.nextID++
	b.users[b.nextID] = &user{
		User: convert.User{
			ID: b.nextID, Username: username, Email: email, Role: role,
			ProfileCompleted: profileCompleted,
			CreatedAt:        time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
		},
		password: password,
	}
	return b.nextID
}

// Issue mints a valid token for userID.
func (b *Backend) Issue(userID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(userID)
}

func (b *Backend) issueLocked(userID int64) string {
	b.nextID++
	tok := fmt.Sprintf("tok-%d-%d", userID, b.nextID)
	b.tokens[tok] = userID
	return tok
}

// Revoke invalidates a token server-side.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	delete(b.tokens, token)
	b.mu.Unlock()
}

// Override forces every request to "METHOD /path" (path without /api) to answer status/body.
func (b *Backend) Override(method, path string, status int, body any) {
	b.mu.Lock()
	b.overrides[method+" "+path] = override{status: status, body: body}
	b.mu.Unlock()
}

// ClearOverrides removes all forced responses.
func (b *Backend) ClearOverrides() {
	b.mu.Lock()
	b.overrides = map[string]override{}
	b.mu.Unlock()
}

// Calls returns how many times "METHOD /path" was hit.
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method+" "+path]
}

// LastAuthorization returns the Authorization header of the last "METHOD /path" request.
func (b *Backend) LastAuthorization(method, path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authHeaders[method+" "+path]
}

// ProfileCompleted reports the server-side flag for userID.
func (b *Backend) ProfileCompleted(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[userID]
	return ok && u.ProfileCompleted
}

// SetProfileCompleted flips the server-side flag.
func (b *Backend) SetProfileCompleted(userID int64, v bool) {
	b.mu.Lock()
	if u, ok := b.users[userID]; ok {
		u.ProfileCompleted = v
	}
	b.mu.Unlock()
}

func (b *Backend) track(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
		b.mu.Lock()
		b.calls[key]++
		b.authHeaders[key] = r.Header.Get("Authorization")
		ov, ok := b.overrides[key]
		b.mu.Unlock()
		if ok {
			return c.JSON(ov.status, ov.body)
		}
		return next(c)
	}
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"error": msg})
}

// authed resolves the bearer token; it writes the error response itself.
func (b *Backend) authed(c echo.Context) (*user, bool, error) {
	h := c.Request().Header.Get("Authorization")
	if h == "" {
		return nil, false, c.JSON(http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
	}
	tok := strings.TrimPrefix(h, "Bearer ")
	if !strings.HasPrefix(tok, "tok-") {
		return nil, false, c.JSON(http.StatusUnprocessableEntity, map[string]any{"msg": "Not enough segments"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.tokens[tok]
	if !ok {
		return nil, false, c.JSON(http.StatusUnauthorized, map[string]any{"msg": "Token has been revoked"})
	}
	u, ok := b.users[id]
	if !ok {
		return nil, false, fail(c, http.StatusNotFound, "User not found")
	}
	return u, true, nil
}

func (b *Backend) byUsername(name string) *user {
	for _, u := range b.users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func (b *Backend) byEmail(email string) *user {
	for _, u := range b.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func mask(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 2 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

func (b *Backend) authOK(c echo.Context, status int, u *user, extra map[string]any) error {
	tok := b.issueLocked(u.ID)
	body := map[string]any{"access_token": tok, "user": u.User}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(status, body)
}

func badOTP(c echo.Context, p *pending) error {
	p.attempts++
	left := MaxAttempts - p.attempts
	if left < 0 {
		left = 0
	}
	return c.JSON(http.StatusBadRequest, map[string]any{
		"success":       false,
		"error":         "Invalid or expired OTP",
		"attempts_left": left,
	})
}

// ---- auth ----

type credsReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpReq struct {
	PendingRegistrationID int64  `json:"pending_registration_id"`
	PendingLoginID        int64  `json:"pending_login_id"`
	ResetID               string `json:"reset_id"`
	OTP                   string `json:"otp"`
}

func (b *Backend) register(c echo.Context) error {
	var r credsReq
	if err := c.Bind(&r); err != nil || r.Username == "" || r.Email == "" || r.Password == "" {
		return fail(c, http.StatusBadRequest, "Username, email, and password are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byUsername(r.Username) != nil {
		return fail(c, http.StatusBadRequest, "Username already exists")
	}
	if b.byEmail(r.Email) != nil {
		return fail(c, http.StatusBadRequest, "Email already exists")
	}
	b.nextID++
	b.regs[b.nextID] = &pending{username: r.Username, email: r.Email, password: r.Password}
	return c.JSON(http.StatusOK, map[string]any{
		"message":                 "OTP sent to your email. Please verify to complete registration.",
		"pending_registration_id": b.nextID,
		"email":                   r.Email,
	})
}

func (b *Backend) resendRegistration(c echo.Context) error {
	var r otpReq
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.regs[r.PendingRegistrationID]
	if !ok {
		return fail(c, http.StatusBadRequest, "Invalid or expired registration request")
	}
	p.attempts = 0
	return c.JSON(http.StatusOK, map[string]any{"message": "OTP resent", "email": p.email})
}

func (b *Backend) verifyRegistration(c echo.Context) error {
	var r otpReq
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.regs[r.PendingRegistrationID]
	if !ok {
		return fail(c, http.StatusBadRequest, "Invalid or expired registration request")
	}
	if r.OTP != OTP {
		return badOTP(c, p)
	}
	delete(b.regs, r.PendingRegistrationID)
	id := b.addUserLocked(p.username, p.email, p.password, "user", false)
	return b.authOK(c, http.StatusCreated, b.users[id], map[string]any{"message": "Registration successful"})
}

func (b *Backend) adminLogin(c echo.Context) error {
	var r credsReq
	if err := c.Bind(&r); err != nil || r.Username == "" || r.Password == "" {
		return fail(c, http.StatusBadRequest, "Username and password are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.byUsername(r.Username)
	if u == nil || u.password != r.Password {
		return fail(c, http.StatusUnauthorized, "Invalid username or password")
	}
	if u.Role != "admin" {
		return fail(c, http.StatusForbidden, "Access denied. This endpoint is for administrators only.")
	}
	return b.authOK(c, http.StatusOK, u, nil)
}

func (b *Backend) login(c echo.Context) error {
	var r credsReq
	if err := c.Bind(&r); err != nil || r.Username == "" || r.Password == "" {
		return fail(c, http.StatusBadRequest, "Username and password are required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.byUsername(r.Username)
	if u == nil || u.password != r.Password {
		return fail(c, http.StatusUnauthorized, "Invalid username or password")
	}
	if u.Role == "admin" || b.LoginSkipsOTPForUsers {
		if !b.AdminSkipsOTP && !b.LoginSkipsOTPForUsers {
			return fail(c, http.StatusForbidden, "Admins must use the admin login endpoint at /api/auth/admin/login")
		}
		return b.authOK(c, http.StatusOK, u, map[string]any{"requires_otp": false})
	}
	for id, p := range b.logins {
		if p.userID == u.ID {
			delete(b.logins, id)
		}
	}
	b.nextID++
	b.logins[b.nextID] = &pending{userID: u.ID, email: u.Email}
	return c.JSON(http.StatusOK, map[string]any{
		"message":          "OTP sent to your email. Please verify to complete login.",
		"pending_login_id": b.nextID,
		"email":            mask(u.Email),
		"requires_otp":     true,
	})
}

func (b *Backend) resendLogin(c echo.Context) error {
	var r otpReq
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.logins[r.PendingLoginID]
	if !ok {
		return fail(c, http.StatusBadRequest, "Invalid or expired login request")
	}
	p.attempts = 0
	return c.JSON(http.StatusOK, map[string]any{"message": "OTP resent", "email": mask(p.email)})
}

func (b *Backend) verifyLogin(c echo.Context) error {
	var r otpReq
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.logins[r.PendingLoginID]
	if !ok {
		return fail(c, http.StatusBadRequest, "Invalid or expired login request")
	}
	if r.OTP != OTP {
		return badOTP(c, p)
	}
	delete(b.logins, r.PendingLoginID)
	u, ok := b.users[p.userID]
	if !ok {
		return fail(c, http.StatusNotFound, "User not found")
	}
	return b.authOK(c, http.StatusOK, u, map[string]any{"message": "Login successful"})
}

func (b *Backend) me(c echo.Context) error {
	u, ok, err := b.authed(c)
	if !ok {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"user": u.User})
}

const forgotMsg = "If this email exists in our system, we have sent an OTP to your email."

func (b *Backend) forgot(c echo.Context) error {
	var r credsReq
	if err := c.Bind(&r); err != nil || r.Email == "" {
		return fail(c, http.StatusBadRequest, "Email is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	body := map[string]any{"success": true, "message": forgotMsg}
	if u := b.byEmail(r.Email); u != nil {
		b.nextID++
		id := fmt.Sprintf("rst-%d", b.nextID)
		b.resets[id] = &pending{userID: u.ID, email: u.Email}
		body["reset_id"] = id
	}
	return c.JSON(http.StatusOK, body)
}

func (b *Backend) forgotVerify(c echo.Context) error {
	var r otpReq
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.resets[r.ResetID]
	if !ok {
		return fail(c, http.StatusBadRequest, "Invalid or expired reset request")
	}
	if r.OTP != OTP {
		return badOTP(c, p)
	}
	delete(b.resets, r.ResetID)
	b.nextID++
	tok := fmt.Sprintf("reset-%d", b.nextID)
	b.resetTokens[tok] = p.userID
	return c.JSON(http.StatusOK, map[string]any{"success": true, "reset_token": tok})
}

func (b *Backend) forgotReset(c echo.Context) error {
	var r struct {
		ResetToken  string `json:"reset_token"`
		NewPassword string `json:"new_password"`
	}
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.resetTokens[r.ResetToken]
	if !ok {
		return fail(c, http.StatusBadRequest, "Invalid or expired reset token")
	}
	if len(r.NewPassword) < 8 {
		return fail(c, http.StatusBadRequest, "Password must be at least 8 characters long")
	}
	delete(b.resetTokens, r.ResetToken)
	u := b.users[id]
	u.password = r.NewPassword
	return b.authOK(c, http.StatusOK, u, map[string]any{"success": true})
}

// ---- loans / profile / admin ----

func (b *Backend) findLoan(c echo.Context) (*convert.Loan, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, fail(c, http.StatusNotFound, "Loan not found")
	}
	for _, l := range b.loans {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fail(c, http.StatusNotFound, "Loan not found")
}

func (b *Backend) listLoans(c echo.Context) error {
	u, ok, err := b.authed(c)
	if !ok {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if u.Role != "admin" && !u.ProfileCompleted {
		return fail(c, http.StatusBadRequest, "Please complete your profile first")
	}
	out := []convert.Loan{}
	for i := len(b.loans) - 1; i >= 0; i-- {
		if u.Role == "admin" || b.loans[i].UserID == u.ID {
			out = append(out, *b.loans[i])
		}
	}
	return c.JSON(http.StatusOK, convert.LoanList{Loans: out})
}

func (b *Backend) createLoan(c echo.Context) error {
	u, ok, err := b.authed(c)
	if !ok {
		return err
	}
	var r convert.CreateLoanRequest
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !u.ProfileCompleted {
		return fail(c, http.StatusBadRequest, "Please complete your profile first")
	}
	if r.Amount <= 0 || r.Purpose == "" {
		return fail(c, http.StatusBadRequest, "Amount and purpose are required")
	}
	b.nextID++
	now := time.Now().UTC().Format("2006-01-02T15:04:05")
	owner := u.User
	l := &convert.Loan{ID: b.nextID, UserID: u.ID, Amount: r.Amount, Purpose: r.Purpose,
		Status: "pending", CreatedAt: now, UpdatedAt: now, User: &owner}
	b.loans = append(b.loans, l)
	return c.JSON(http.StatusCreated, convert.LoanEnvelope{Message: "Loan application created successfully", Loan: *l})
}

func (b *Backend) getLoan(c echo.Context) error {
	u, ok, err := b.authed(c)
	if !ok {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l, err := b.findLoan(c)
	if l == nil {
		return err
	}
	if u.Role != "admin" && l.UserID != u.ID {
		return fail(c, http.StatusForbidden, "Unauthorized")
	}
	return c.JSON(http.StatusOK, convert.LoanEnvelope{Loan: *l})
}

func (b *Backend) getProfile(c echo.Context) error {
	u, ok, err := b.authed(c)
	if !ok {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(http.StatusOK, convert.ProfileEnvelope{Profile: u.profile, ProfileCompleted: u.ProfileCompleted})
}

func (b *Backend) saveProfile(c echo.Context) error {
	u, ok, err := b.authed(c)
	if !ok {
		return err
	}
	var p convert.Profile
	if err := c.Bind(&p); err != nil {
		return fail(c, http.StatusBadRequest, "No data provided")
	}
	if p.FirstName == "" || p.LastName == "" || p.Phone == "" || p.Address == "" ||
		p.DateOfBirth == "" || p.EmploymentStatus == "" || p.AnnualIncome == nil {
		return fail(c, http.StatusBadRequest, "Missing required fields")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p.UpdatedAt = time.Now().UTC().Format("2006-01-02T15:04:05")
	u.profile = &p
	u.ProfileCompleted = true
	return c.JSON(http.StatusOK, convert.ProfileEnvelope{Message: "Profile saved successfully", Profile: &p, ProfileCompleted: true})
}

func (b *Backend) admin(c echo.Context) (*user, bool, error) {
	u, ok, err := b.authed(c)
	if !ok {
		return nil, false, err
	}
	if u.Role != "admin" {
		return nil, false, fail(c, http.StatusForbidden, "Admin access required")
	}
	return u, true, nil
}

func (b *Backend) pendingLoans(c echo.Context) error {
	if _, ok, err := b.admin(c); !ok {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []convert.Loan{}
	for _, l := range b.loans {
		if l.Status == "pending" {
			out = append(out, *l)
		}
	}
	return c.JSON(http.StatusOK, convert.LoanList{Loans: out})
}

func (b *Backend) review(c echo.Context, approve bool) error {
	u, ok, err := b.admin(c)
	if !ok {
		return err
	}
	var r convert.ReviewRequest
	_ = c.Bind(&r)
	b.mu.Lock()
	defer b.mu.Unlock()
	l, err := b.findLoan(c)
	if l == nil {
		return err
	}
	if l.Status != "pending" {
		return fail(c, http.StatusBadRequest, "Loan is not pending")
	}
	if !approve {
		switch r.RejectionReason {
		case "INSUFFICIENT_INCOME", "POOR_CREDIT_HISTORY", "INCOMPLETE_DOCUMENTATION", "EXCEEDS_LIMIT":
		case "":
			return fail(c, http.StatusBadRequest, "Rejection reason is required")
		default:
			return fail(c, http.StatusBadRequest, "Invalid rejection reason code")
		}
	}
	now := time.Now().UTC().Format("2006-01-02T15:04:05")
	reviewer := u.ID
	notes := r.AdminNotes
	l.ReviewedAt, l.ReviewedBy, l.AdminNotes, l.UpdatedAt = &now, &reviewer, &notes, now
	if approve {
		l.Status, l.RejectionReason = "approved", nil
	} else {
		reason := r.RejectionReason
		l.Status, l.RejectionReason = "rejected", &reason
	}
	return c.JSON(http.StatusOK, convert.LoanEnvelope{Loan: *l})
}

func (b *Backend) approve(c echo.Context) error { return b.review(c, true) }
func (b *Backend) reject(c echo.Context) error  { return b.review(c, false) }

func (b *Backend) reasons(c echo.Context) error {
	if _, ok, err := b.admin(c); !ok {
		return err
	}
	return c.JSON(http.StatusOK, convert.ReasonList{Reasons: []convert.Reason{
		{Code: "INSUFFICIENT_INCOME", Label: "Insufficient Income"},
		{Code: "POOR_CREDIT_HISTORY", Label: "Poor Credit History"},
		{Code: "INCOMPLETE_DOCUMENTATION", Label: "Incomplete Documentation"},
		{Code: "EXCEEDS_LIMIT", Label: "Exceeds Maximum Limit"},
	}})
}
