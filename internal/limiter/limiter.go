// Package limiter implements the advisory OTP-resend cooldown.
package limiter

import (
	"context"
	"sync"
	"time"
)

// DefaultCooldown matches the backend's resend window.
const DefaultCooldown = 60 * time.Second

// Limiter controls how often an OTP may be re-requested for one pending flow.
type Limiter interface {
	// Allow reports whether a resend is currently allowed and the optional retry-after.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	// Sent starts the cooldown window for key.
	Sent(ctx context.Context, key string) error
	// Forget drops key once its flow ends.
	Forget(ctx context.Context, key string) error
}

// Cooldown is an in-memory Limiter with a fixed window per key.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewCooldown constructs a cooldown limiter; window <= 0 disables it.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: map[string]time.Time{}, now: time.Now}
}

// Allow reports whether key is outside its cooldown window.
func (c *Cooldown) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window <= 0 {
		return true, 0, nil
	}
	at, ok := c.last[key]
	if !ok {
		return true, 0, nil
	}
	if wait := at.Add(c.window).Sub(c.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Sent records a send for key.
func (c *Cooldown) Sent(_ context.Context, key string) error {
	c.mu.Lock()
	c.last[key] = c.now()
	c.mu.Unlock()
	return nil
}

// Forget removes key.
func (c *Cooldown) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.last, key)
	c.mu.Unlock()
	return nil
}
