package transport

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const requestIDKey ctxKey = "lms.requestID"

// HeaderRequestID carries the correlation id to the backend.
const HeaderRequestID = "X-Request-ID"

// WithRequestID stores a caller-chosen request ID in context.
func WithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx fetches the request ID from context.
func RequestIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(requestIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
