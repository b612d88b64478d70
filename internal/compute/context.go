package compute

import (
	"context"

	"powersvc/domain/core"
)

type requestIDKey struct{}

// WithRequestID tags ctx with the id used in computation logs
func WithRequestID(ctx context.Context, id core.RequestID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored by WithRequestID
func RequestIDFrom(ctx context.Context) (core.RequestID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(core.RequestID)
	return id, ok
}
