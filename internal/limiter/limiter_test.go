package limiter

import (
	"context"
	"testing"
	"time"
)

func TestCooldown_Window(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewCooldown(time.Minute)
	c.now = func() time.Time { return now }

	if ok, _, err := c.Allow(ctx, "login:7"); !ok || err != nil {
		t.Fatalf("fresh key must be allowed: %v %v", ok, err)
	}
	_ = c.Sent(ctx, "login:7")

	now = now.Add(20 * time.Second)
	ok, wait, _ := c.Allow(ctx, "login:7")
	if ok || wait != 40*time.Second {
		t.Fatalf("want blocked for 40s, got ok=%v wait=%v", ok, wait)
	}
	if ok, _, _ := c.Allow(ctx, "login:8"); !ok {
		t.Fatalf("keys must be independent")
	}

	now = now.Add(40 * time.Second)
	if ok, _, _ := c.Allow(ctx, "login:7"); !ok {
		t.Fatalf("window elapsed, must be allowed")
	}

	_ = c.Sent(ctx, "login:7")
	_ = c.Forget(ctx, "login:7")
	if ok, _, _ := c.Allow(ctx, "login:7"); !ok {
		t.Fatalf("forgotten key must be allowed")
	}
}

func TestCooldown_Disabled(t *testing.T) {
	t.Parallel()
	c := NewCooldown(0)
	_ = c.Sent(context.Background(), "k")
	if ok, wait, _ := c.Allow(context.Background(), "k"); !ok || wait != 0 {
		t.Fatalf("disabled limiter must always allow")
	}
}
