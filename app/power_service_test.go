package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"powersvc/adapters/contrast"
	"powersvc/adapters/covariance"
	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/domain/power"
	"powersvc/domain/run"
	"powersvc/internal/compute"
	apperrors "powersvc/internal/errors"
	"powersvc/internal/params"
	"powersvc/internal/testkit"
	"powersvc/internal/validation"
	"powersvc/ports"
)

// Mock implementations for testing
type MockPowerEngine struct {
	mock.Mock
}

func (m *MockPowerEngine) ComputePower(ctx context.Context, p *power.Parameters) ([]power.EngineResult, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).([]power.EngineResult)
	return res, args.Error(1)
}

type MockRunLedger struct {
	mock.Mock
	records []*run.Record
}

func (m *MockRunLedger) Record(ctx context.Context, rec *run.Record) error {
	args := m.Called(ctx, rec)
	m.records = append(m.records, rec)
	return args.Error(0)
}

func (m *MockRunLedger) Get(ctx context.Context, id core.RequestID) (*run.Record, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*run.Record), args.Error(1)
}

func (m *MockRunLedger) Recent(ctx context.Context, limit int) ([]*run.Record, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*run.Record), args.Error(1)
}

func newTestService(t *testing.T, engine *MockPowerEngine, ledger *MockRunLedger) *PowerService {
	t.Helper()
	orch := compute.NewOrchestrator(engine, compute.Options{Timeout: time.Second, IdleTimeout: time.Second}, nil)
	t.Cleanup(func() { _ = orch.Close(context.Background()) })
	// avoid wrapping a nil *MockRunLedger in a non-nil interface
	var runLedger ports.RunLedger
	if ledger != nil {
		runLedger = ledger
	}
	return NewPowerService(
		validation.NewValidator(validation.DefaultLimits()),
		params.NewAssembler(contrast.NewBuilder(), covariance.NewBuilder(), nil),
		orch,
		runLedger,
		nil,
	)
}

func TestPowerSuccess(t *testing.T) {
	engine := new(MockPowerEngine)
	ledger := new(MockRunLedger)
	engine.On("ComputePower", mock.Anything, mock.MatchedBy(func(p *power.Parameters) bool {
		return p.SolutionType == design.SolvePower
	})).Return([]power.EngineResult{{
		Test: design.TestHotelling, Alpha: 0.05, ActualPower: 0.81, TotalSampleSize: 34, Quantile: math.NaN(),
	}}, nil)
	ledger.On("Record", mock.Anything, mock.Anything).Return(nil)

	resp, err := newTestService(t, engine, ledger).Power(context.Background(), testkit.TwoGroupDesign())
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 0.81, resp.Results[0].ActualPower)
	assert.Nil(t, resp.Results[0].Quantile)
	assert.False(t, resp.RequestID.String() == "")

	engine.AssertExpectations(t)
	require.Len(t, ledger.records, 1)
	rec := ledger.records[0]
	assert.Equal(t, run.StateCompleted, rec.State)
	assert.Equal(t, run.KindPower, rec.Kind)
	assert.Equal(t, 1, rec.ResultCount)
	assert.Equal(t, resp.RequestID, rec.ID)
	assert.NotEmpty(t, rec.DesignHash)
}

func TestSampleSizeSetsSolutionType(t *testing.T) {
	engine := new(MockPowerEngine)
	engine.On("ComputePower", mock.Anything, mock.MatchedBy(func(p *power.Parameters) bool {
		return p.SolutionType == design.SolveSampleSize
	})).Return([]power.EngineResult{{Quantile: math.NaN()}}, nil)

	d := testkit.TwoGroupDesign()
	d.SolutionType = design.SolvePower
	_, err := newTestService(t, engine, nil).SampleSize(context.Background(), d)
	require.NoError(t, err)
	engine.AssertExpectations(t)
	assert.Equal(t, design.SolvePower, d.SolutionType, "caller's design is not modified")
}

func TestValidationFailureSkipsEngine(t *testing.T) {
	engine := new(MockPowerEngine)
	ledger := new(MockRunLedger)
	ledger.On("Record", mock.Anything, mock.Anything).Return(nil)

	d := testkit.TwoGroupDesign()
	d.SampleSizes = []int{10, 20, 30, 40}
	d.StatisticalTests = []design.StatisticalTest{design.TestHotelling, design.TestWilks}
	d.Alphas = []float64{0.01, 0.05}
	d.BetaScales = []float64{0.5, 1, 2}
	d.SigmaScales = []float64{0.5, 1, 2}

	_, err := newTestService(t, engine, ledger).Power(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
	assert.Contains(t, apperrors.ClientMessage(err), "144 cases")
	engine.AssertNotCalled(t, "ComputePower", mock.Anything, mock.Anything)

	require.Len(t, ledger.records, 1)
	assert.Equal(t, run.StateFailed, ledger.records[0].State)
	assert.Equal(t, 144, ledger.records[0].Cases)
	assert.Equal(t, apperrors.CodeValidationError, ledger.records[0].ErrorCode)
}

func TestAssemblyFailureIsValidationError(t *testing.T) {
	engine := new(MockPowerEngine)
	d := testkit.TwoGroupDesign()
	d.Covariances = nil

	_, err := newTestService(t, engine, nil).Power(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, "Invalid covariance information for response variables", apperrors.ClientMessage(err))
	engine.AssertNotCalled(t, "ComputePower", mock.Anything, mock.Anything)
}

func TestEngineBadInputIsTruncated(t *testing.T) {
	engine := new(MockPowerEngine)
	ledger := new(MockRunLedger)
	ledger.On("Record", mock.Anything, mock.Anything).Return(nil)
	long := "Between participant contrast has 3 columns but beta has 2 rows"
	engine.On("ComputePower", mock.Anything, mock.Anything).Return(nil, core.NewEngineValidationError("%s", long))

	_, err := newTestService(t, engine, ledger).Power(context.Background(), testkit.TwoGroupDesign())
	require.Error(t, err)
	assert.Equal(t, long[:50]+apperrors.TruncationMarker, apperrors.ClientMessage(err))

	rec := ledger.records[0]
	assert.Equal(t, run.StateFailed, rec.State)
	assert.Equal(t, apperrors.CodeBadInput, rec.ErrorCode)
	assert.True(t, strings.Contains(rec.Detail, long))
}

func TestLedgerFailureDoesNotFailRequest(t *testing.T) {
	engine := new(MockPowerEngine)
	ledger := new(MockRunLedger)
	engine.On("ComputePower", mock.Anything, mock.Anything).Return([]power.EngineResult{{Quantile: math.NaN()}}, nil)
	ledger.On("Record", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	resp, err := newTestService(t, engine, ledger).DetectableDifference(context.Background(), testkit.TwoGroupDesign())
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestNilDesign(t *testing.T) {
	_, err := newTestService(t, new(MockPowerEngine), nil).Power(context.Background(), nil)
	assert.Equal(t, "Invalid study design", apperrors.ClientMessage(err))
}

func TestMatricesPreview(t *testing.T) {
	engine := new(MockPowerEngine)
	resp, err := newTestService(t, engine, nil).Matrices(context.Background(), testkit.TwoGroupDesign())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Matrices)
	assert.Equal(t, design.MatrixDesign, resp.Matrices[0].Name)
	assert.Equal(t, design.MatrixSigmaError, resp.Matrices[len(resp.Matrices)-1].Name)
	engine.AssertNotCalled(t, "ComputePower", mock.Anything, mock.Anything)
}
