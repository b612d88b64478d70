package app

import (
	"context"
	"time"

	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/domain/power"
	"powersvc/domain/run"
	"powersvc/internal"
	"powersvc/internal/compute"
	apperrors "powersvc/internal/errors"
	"powersvc/internal/params"
	"powersvc/internal/results"
	"powersvc/internal/validation"
	"powersvc/ports"
)

// PowerResponse is the outcome of one computed request
type PowerResponse struct {
	RequestID core.RequestID      `json:"requestId"`
	Results   []power.PowerResult `json:"results"`
}

// MatrixResponse is the outcome of a matrix preview request
type MatrixResponse struct {
	RequestID core.RequestID       `json:"requestId"`
	Matrices  []design.NamedMatrix `json:"matrices"`
}

// PowerService runs power, sample size and detectable difference requests
// end to end: validation, assembly, bounded computation, translation and
// the run ledger. Errors returned to callers are *errors.AppError.
type PowerService struct {
	validator    *validation.Validator
	assembler    *params.Assembler
	orchestrator *compute.Orchestrator
	ledger       ports.RunLedger
	logger       *internal.Logger
}

// NewPowerService wires the service. ledger may be nil.
func NewPowerService(
	validator *validation.Validator,
	assembler *params.Assembler,
	orchestrator *compute.Orchestrator,
	ledger ports.RunLedger,
	logger *internal.Logger,
) *PowerService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PowerService{
		validator:    validator,
		assembler:    assembler,
		orchestrator: orchestrator,
		ledger:       ledger,
		logger:       logger,
	}
}

// Power computes power for each requested sample size
func (s *PowerService) Power(ctx context.Context, d *design.StudyDesign) (*PowerResponse, error) {
	return s.compute(ctx, run.KindPower, design.SolvePower, d)
}

// SampleSize finds the total sample size reaching each nominal power
func (s *PowerService) SampleSize(ctx context.Context, d *design.StudyDesign) (*PowerResponse, error) {
	return s.compute(ctx, run.KindSampleSize, design.SolveSampleSize, d)
}

// DetectableDifference finds the smallest beta scale reaching each nominal power
func (s *PowerService) DetectableDifference(ctx context.Context, d *design.StudyDesign) (*PowerResponse, error) {
	return s.compute(ctx, run.KindDetectableDifference, design.SolveDetectableDifference, d)
}

// Validate runs the design validator only
func (s *PowerService) Validate(d *design.StudyDesign) error {
	if err := s.validator.Validate(d); err != nil {
		return apperrors.ValidationError(err)
	}
	return nil
}

// Matrices returns the named matrices a design assembles to, without
// running the engine.
func (s *PowerService) Matrices(ctx context.Context, d *design.StudyDesign) (*MatrixResponse, error) {
	id := core.NewRequestID()
	logger := s.logger.With("request_id", id.String())
	started := time.Now()
	rec := run.NewRecord(id, run.KindMatrices, hashOf(d))

	if d == nil {
		return nil, s.fail(ctx, logger, rec, started, run.StateFailed, apperrors.InvalidDesign())
	}
	matrices, err := s.assembler.NamedMatrices(d)
	if err != nil {
		return nil, s.fail(ctx, logger, rec, started, run.StateFailed, classifyAssembly(err))
	}

	rec.ResultCount = len(matrices)
	rec.Finish(run.StateCompleted, started)
	s.record(ctx, logger, rec)
	logger.Info("assembled %d matrices in %s", len(matrices), time.Since(started))
	return &MatrixResponse{RequestID: id, Matrices: matrices}, nil
}

func (s *PowerService) compute(ctx context.Context, kind run.Kind, solve design.SolutionType, d *design.StudyDesign) (*PowerResponse, error) {
	id := core.NewRequestID()
	ctx = compute.WithRequestID(ctx, id)
	logger := s.logger.With("request_id", id.String(), "kind", string(kind))
	started := time.Now()
	rec := run.NewRecord(id, kind, hashOf(d))

	if d == nil {
		return nil, s.fail(ctx, logger, rec, started, run.StateFailed, apperrors.InvalidDesign())
	}
	req := *d
	req.SolutionType = solve
	rec.Cases = validation.CountCases(&req)

	if err := s.validator.Validate(&req); err != nil {
		return nil, s.fail(ctx, logger, rec, started, run.StateFailed, apperrors.ValidationError(err))
	}

	p, err := s.assembler.BuildParameters(&req)
	if err != nil {
		return nil, s.fail(ctx, logger, rec, started, run.StateFailed, classifyAssembly(err))
	}

	out := s.orchestrator.Execute(ctx, p)
	if out.Err != nil {
		return nil, s.fail(ctx, logger, rec, started, out.State, out.Err)
	}

	translated := results.Translate(out.Results)
	rec.ResultCount = len(translated)
	rec.Finish(run.StateCompleted, started)
	s.record(ctx, logger, rec)
	return &PowerResponse{RequestID: id, Results: translated}, nil
}

// classifyAssembly keeps design problems client-facing and hides the rest
func classifyAssembly(err error) error {
	if core.IsValidationError(err) {
		return apperrors.ValidationError(err)
	}
	return apperrors.InternalError(err)
}

func (s *PowerService) fail(ctx context.Context, logger *internal.Logger, rec *run.Record, started time.Time, state run.State, err error) error {
	logger.Error("%s request failed: %v", rec.Kind, err)
	rec.ErrorCode = apperrors.GetCode(err)
	rec.ClientMessage = apperrors.ClientMessage(err)
	rec.Detail = err.Error()
	rec.Finish(state, started)
	s.record(ctx, logger, rec)
	return err
}

// record writes rec to the ledger. Ledger failures never fail the request.
func (s *PowerService) record(ctx context.Context, logger *internal.Logger, rec *run.Record) {
	if s.ledger == nil {
		return
	}
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.ledger.Record(ctx, rec); err != nil {
		logger.Warn("failed to record run %s: %v", rec.ID, err)
	}
}

func hashOf(d *design.StudyDesign) core.Hash {
	if d == nil {
		return ""
	}
	h, err := core.HashJSON(d)
	if err != nil {
		return ""
	}
	return h
}
