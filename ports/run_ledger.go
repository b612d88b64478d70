package ports

import (
	"context"

	"powersvc/domain/core"
	"powersvc/domain/run"
)

// RunLedger records the outcome of every power request
type RunLedger interface {
	Record(ctx context.Context, rec *run.Record) error
	Get(ctx context.Context, id core.RequestID) (*run.Record, error)
	Recent(ctx context.Context, limit int) ([]*run.Record, error)
}
