// Package apiclient performs JSON requests against the loan API, attaching the
// bearer credential and detecting session invalidation.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lms-client/internal/convert"
	"github.com/and161185/lms-client/internal/errs"
	"github.com/and161185/lms-client/internal/tokenstore"
	"github.com/and161185/lms-client/internal/transport"
)

const maxBody = 1 << 20

// Invalidator is told when the backend rejects the held credential.
// redirect is false when the caller is already on a login/registration view.
type Invalidator interface {
	Invalidate(ctx context.Context, redirect bool)
}

// Client is safe for concurrent use.
type Client struct {
	base       string
	http       *http.Client
	tokens     tokenstore.Store
	log        *zap.Logger
	onAuthView func() bool

	mu          sync.RWMutex
	invalidator Invalidator
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }

// WithAuthViewCheck reports whether the current view is a login/registration view.
func WithAuthViewCheck(fn func() bool) Option { return func(c *Client) { c.onAuthView = fn } }

// New constructs a client for baseURL (e.g. "https://lms.example/api").
func New(baseURL string, tokens tokenstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		onAuthView: func() bool { return false },
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.Chain(http.DefaultTransport, transport.Recover(c.log), transport.RequestID, transport.Logging(c.log)),
		}
	}
	return c, nil
}

// BaseURL returns the API base the client was built with.
func (c *Client) BaseURL() string { return c.base }

// SetInvalidator registers the session that owns the credential.
func (c *Client) SetInvalidator(inv Invalidator) {
	c.mu.Lock()
	c.invalidator = inv
	c.mu.Unlock()
}

// Get issues a GET and decodes the JSON response into out (may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

// Do performs one request. Failures are *errs.APIError values; nothing is retried.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	ep := lookup(path)

	tok, err := c.tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("token store: %w", err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	} else if !ep.public {
		c.log.Warn("no token for protected request", zap.String("path", path))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.APIError{Kind: errs.ErrNetwork, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &errs.APIError{Kind: errs.ErrNetwork, Status: resp.StatusCode, Path: path, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &errs.APIError{Kind: errs.ErrServer, Status: resp.StatusCode, Path: path,
				Message: "Invalid response from server", Err: err}
		}
		return nil
	}

	var eb convert.ErrorBody
	_ = json.Unmarshal(raw, &eb)
	ae := &errs.APIError{
		Kind:         classify(ep, resp.StatusCode, eb),
		Status:       resp.StatusCode,
		Message:      eb.Text(),
		Path:         path,
		AttemptsLeft: eb.AttemptsLeft,
	}

	if c.expires(ep, path, resp.StatusCode) {
		ae.Kind = errs.ErrSessionExpired
		if tok != "" {
			c.invalidate(ctx, tok, path)
		}
	}
	return ae
}

// expires reports whether status on path signals an invalid credential.
func (c *Client) expires(ep endpoint, path string, status int) bool {
	if ep.public {
		return false
	}
	if status == http.StatusUnauthorized {
		return true
	}
	return status == http.StatusUnprocessableEntity && strings.HasPrefix(path, PathMe)
}

func (c *Client) invalidate(ctx context.Context, sent, path string) {
	// a newer credential may have been stored while the request was in flight
	cur, err := c.tokens.Get(ctx)
	if err != nil || cur != sent {
		return
	}
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error("clear token", zap.Error(err))
	}
	redirect := !c.onAuthView()
	c.log.Warn("credential rejected, session invalidated",
		zap.String("path", path),
		zap.Bool("redirect", redirect),
	)

	c.mu.RLock()
	inv := c.invalidator
	c.mu.RUnlock()
	if inv != nil {
		inv.Invalidate(ctx, redirect)
	}
}

func classify(ep endpoint, status int, eb convert.ErrorBody) error {
	if ep.otp && (status == http.StatusBadRequest || status == http.StatusUnauthorized) && wrongOTP(eb) {
		return errs.ErrInvalidOTP
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return errs.ErrValidation
	case http.StatusUnauthorized:
		return errs.ErrAuth
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusTooManyRequests:
		return errs.ErrRateLimited
	}
	return errs.ErrServer
}

// wrongOTP tells a rejected code apart from a missing field or a dead pending request.
func wrongOTP(eb convert.ErrorBody) bool {
	if eb.AttemptsLeft != nil {
		return true
	}
	msg := strings.ToLower(eb.Text())
	return !strings.Contains(msg, "request") && !strings.Contains(msg, "required")
}

// IsSessionExpired reports whether err came from a rejected credential.
func IsSessionExpired(err error) bool { return errors.Is(err, errs.ErrSessionExpired) }
