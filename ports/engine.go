package ports

import (
	"context"

	"powersvc/domain/power"
)

// PowerEngine computes power, sample size or detectable difference for a
// parameter bundle. Implementations may run for a long time; callers apply
// their own deadline. Engines should return promptly once ctx is done, but
// callers must not rely on it.
//
// Malformed bundles fail with *core.EngineValidationError; running out of
// memory is signalled by wrapping core.ErrResourceExhausted.
type PowerEngine interface {
	ComputePower(ctx context.Context, params *power.Parameters) ([]power.EngineResult, error)
}

// PowerEngineFunc adapts a function to PowerEngine
type PowerEngineFunc func(ctx context.Context, params *power.Parameters) ([]power.EngineResult, error)

// ComputePower calls f
func (f PowerEngineFunc) ComputePower(ctx context.Context, params *power.Parameters) ([]power.EngineResult, error) {
	return f(ctx, params)
}
