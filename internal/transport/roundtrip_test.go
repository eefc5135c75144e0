package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
)

func okRT(seen *http.Request) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		*seen = *r
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})
}

func TestRequestID_GeneratedAndFromCtx(t *testing.T) {
	t.Parallel()

	var seen http.Request
	rt := RequestID(okRT(&seen))

	req := httptest.NewRequest(http.MethodGet, "http://x/api/auth/me", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("roundtrip: %v", err)
	}
	if _, err := uuid.FromString(seen.Header.Get(HeaderRequestID)); err != nil {
		t.Fatalf("generated id is not a uuid: %q", seen.Header.Get(HeaderRequestID))
	}
	if req.Header.Get(HeaderRequestID) != "" {
		t.Fatalf("caller request must not be mutated")
	}

	id := uuid.Must(uuid.NewV4())
	req = httptest.NewRequest(http.MethodGet, "http://x/api/auth/me", nil).WithContext(WithRequestID(context.Background(), id))
	_, _ = rt.RoundTrip(req)
	if seen.Header.Get(HeaderRequestID) != id.String() {
		t.Fatalf("want ctx id %s, got %s", id, seen.Header.Get(HeaderRequestID))
	}
}

func TestRequestIDFromCtx_Missing(t *testing.T) {
	t.Parallel()
	if id, ok := RequestIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("want nil id, got %v %v", id, ok)
	}
}

func TestLogging_Passthrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	var seen http.Request
	rt := Chain(okRT(&seen), Logging(log))
	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://x/api/loans", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected: %v %v", resp, err)
	}

	wantErr := errors.New("boom")
	rtErr := Chain(RoundTripperFunc(func(*http.Request) (*http.Response, error) { return nil, wantErr }), Logging(log))
	if _, err := rtErr.RoundTrip(httptest.NewRequest(http.MethodGet, "http://x/api/loans", nil)); !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got %v", err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	rt := Chain(RoundTripperFunc(func(*http.Request) (*http.Response, error) { panic("oh no") }), Recover(log))
	if _, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://x/", nil)); err == nil {
		t.Fatalf("expected error from panic")
	}
}
