// Package compute runs engine computations on a cached worker pool under a
// deadline and classifies their failures for callers.
package compute

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"powersvc/domain/core"
	"powersvc/domain/power"
	"powersvc/domain/run"
	"powersvc/internal"
	apperrors "powersvc/internal/errors"
	"powersvc/ports"
)

// DefaultTimeout bounds a single computation when none is configured
const DefaultTimeout = 300 * time.Second

// DefaultIdleTimeout is how long an idle worker is kept around
const DefaultIdleTimeout = 60 * time.Second

// Options configure an Orchestrator
type Options struct {
	Timeout     time.Duration
	IdleTimeout time.Duration
	MaxWorkers  int64
}

// Outcome is the terminal result of one computation
type Outcome struct {
	State   run.State
	Results []power.EngineResult
	Err     error
	Elapsed time.Duration
}

// Orchestrator executes engine calls off the request goroutine.
//
// On timeout the job's context is cancelled and the caller gets a Timeout
// error right away. An engine that does not watch its context keeps running
// and holds its worker until it returns on its own; the worker is not reused
// in the meantime.
type Orchestrator struct {
	engine  ports.PowerEngine
	pool    *Pool
	timeout time.Duration
	logger  *internal.Logger
}

// NewOrchestrator creates an orchestrator with its own worker pool
func NewOrchestrator(engine ports.PowerEngine, opts Options, logger *internal.Logger) *Orchestrator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Orchestrator{
		engine:  engine,
		pool:    NewPool(opts.IdleTimeout, opts.MaxWorkers, logger),
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Timeout is the deadline applied to each computation
func (o *Orchestrator) Timeout() time.Duration {
	return o.timeout
}

// Pool exposes the worker pool for health reporting
func (o *Orchestrator) Pool() *Pool {
	return o.pool
}

// Compute runs the engine on params and returns its results, or an
// *errors.AppError carrying the caller-facing message.
func (o *Orchestrator) Compute(ctx context.Context, params *power.Parameters) ([]power.EngineResult, error) {
	out := o.Execute(ctx, params)
	return out.Results, out.Err
}

type engineReply struct {
	results []power.EngineResult
	err     error
}

// Execute is Compute with the terminal state and timing exposed
func (o *Orchestrator) Execute(ctx context.Context, params *power.Parameters) Outcome {
	start := time.Now()
	logger := o.logger
	if id, ok := RequestIDFrom(ctx); ok {
		logger = logger.With("request_id", id.String())
	}

	if params == nil {
		return o.finish(logger, start, nil, apperrors.InvalidDesign())
	}
	logger.Debug("state %s", run.StateSubmitted)
	logMemory(logger)

	jobCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reply := make(chan engineReply, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				reply <- engineReply{err: fmt.Errorf("%w: engine panic: %v", core.ErrInternal, r)}
			}
		}()
		logger.Debug("state %s", run.StateRunning)
		results, err := o.engine.ComputePower(jobCtx, params)
		reply <- engineReply{results: results, err: err}
	}

	if err := o.pool.Submit(jobCtx, job); err != nil {
		return o.finish(logger, start, nil, o.classify(ctx, jobCtx, err))
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return o.finish(logger, start, nil, o.classify(ctx, jobCtx, r.err))
		}
		return o.finish(logger, start, r.results, nil)
	case <-jobCtx.Done():
		return o.finish(logger, start, nil, o.classify(ctx, jobCtx, jobCtx.Err()))
	}
}

// classify maps an engine or scheduling failure to its caller-facing error
func (o *Orchestrator) classify(parent, job context.Context, err error) error {
	switch {
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return apperrors.Interrupted(err)
	case errors.Is(job.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded), core.IsTimeout(err):
		return apperrors.Timeout(err)
	case core.IsEngineValidationError(err):
		return apperrors.BadInput(err)
	case core.IsResourceExhausted(err):
		return apperrors.InsufficientMemory(err)
	case core.IsValidationError(err):
		return apperrors.ValidationError(err)
	case errors.Is(err, core.ErrInterrupted):
		return apperrors.Interrupted(err)
	}
	return apperrors.InternalError(err)
}

func (o *Orchestrator) finish(logger *internal.Logger, start time.Time, results []power.EngineResult, err error) Outcome {
	out := Outcome{Results: results, Err: err, Elapsed: time.Since(start)}
	switch {
	case err == nil:
		out.State = run.StateCompleted
		logger.Info("computation completed in %s (%d results)", out.Elapsed, len(results))
	case apperrors.GetCode(err) == apperrors.CodeTimeout:
		out.State = run.StateTimedOut
		logger.Error("computation timed out after %s: %v", out.Elapsed, err)
	default:
		out.State = run.StateFailed
		logger.Error("computation failed after %s: %v", out.Elapsed, err)
	}
	return out
}

// Close stops the worker pool, waiting for busy workers until ctx is done
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.pool.Close(ctx)
}

func logMemory(logger *internal.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info("starting computation: heap in use %d KiB, system %d KiB, goroutines %d",
		m.HeapInuse/1024, m.Sys/1024, runtime.NumGoroutine())
}
