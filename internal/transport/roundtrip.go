// Package transport provides http.RoundTripper middleware for the API client.
package transport

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain wraps base with middlewares; the first one is outermost.
func Chain(base http.RoundTripper, mw ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}
	return base
}

// RequestID sets X-Request-ID from context, generating a UUIDv4 when absent.
func RequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(HeaderRequestID) != "" {
			return next.RoundTrip(r)
		}
		id, ok := RequestIDFromCtx(r.Context())
		if !ok {
			var err error
			if id, err = uuid.NewV4(); err != nil {
				return nil, err
			}
		}
		r = r.Clone(r.Context())
		r.Header.Set(HeaderRequestID, id.String())
		return next.RoundTrip(r)
	})
}

// Logging returns middleware that logs one line per request.
func Logging(log *zap.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)

			// metadata only, never bodies or headers
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("dur", time.Since(start)),
				zap.String("request_id", r.Header.Get(HeaderRequestID)),
			}
			if err != nil {
				log.Info("http", append(fields, zap.Error(err))...)
				return resp, err
			}
			log.Info("http", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}

// Recover returns middleware that turns a panic in the transport into an error.
func Recover(log *zap.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (resp *http.Response, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					resp, err = nil, fmt.Errorf("transport panic: %v", rec)
				}
			}()
			return next.RoundTrip(r)
		})
	}
}
