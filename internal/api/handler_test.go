package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"powersvc/adapters/contrast"
	"powersvc/adapters/covariance"
	"powersvc/adapters/engine/glmm"
	"powersvc/adapters/excel"
	"powersvc/app"
	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/domain/power"
	"powersvc/internal/compute"
	"powersvc/internal/params"
	"powersvc/internal/testkit"
	"powersvc/internal/validation"
	"powersvc/ports"
)

func newTestRouter(t *testing.T, engine ports.PowerEngine, maxBody int64) *gin.Engine {
	t.Helper()
	orch := compute.NewOrchestrator(engine, compute.Options{Timeout: 2 * time.Second, IdleTimeout: time.Second}, nil)
	t.Cleanup(func() { _ = orch.Close(context.Background()) })

	service := app.NewPowerService(
		validation.NewValidator(validation.DefaultLimits()),
		params.NewAssembler(contrast.NewBuilder(), covariance.NewBuilder(), nil),
		orch,
		nil,
		nil,
	)
	return NewRouter(NewPowerHandler(service, nil, maxBody), gin.TestMode)
}

func post(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPowerEndToEnd(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	w := post(t, router, "/power", testkit.TwoGroupDesign())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp app.PowerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 0.807, resp.Results[0].ActualPower, 0.01)
	assert.Equal(t, 34, resp.Results[0].TotalSampleSize)
	assert.NotEmpty(t, resp.RequestID)
}

func TestSampleSizeEndToEnd(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	w := post(t, router, "/samplesize", testkit.TwoGroupDesign())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp app.PowerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 34, resp.Results[0].TotalSampleSize)
	assert.GreaterOrEqual(t, resp.Results[0].ActualPower, 0.8)
}

func TestCovariatePowerEndToEnd(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	w := post(t, router, "/power", testkit.CovariateDesign())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp app.PowerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)

	methods := map[design.PowerMethod]power.PowerResult{}
	for _, r := range resp.Results {
		methods[r.PowerMethod] = r
		assert.Empty(t, r.ErrorMessage)
		assert.Greater(t, r.ActualPower, 0.05)
		assert.Less(t, r.ActualPower, 1.0)
	}
	assert.Nil(t, methods[design.PowerUnconditional].Quantile)
	require.NotNil(t, methods[design.PowerQuantile].Quantile)
	assert.Equal(t, 0.5, *methods[design.PowerQuantile].Quantile)
}

func TestMatrixPreview(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	w := post(t, router, "/matrix", testkit.TwoGroupDesign())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp app.MatrixResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	names := make([]string, 0, len(resp.Matrices))
	for _, m := range resp.Matrices {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, design.MatrixDesign)
	assert.Contains(t, names, design.MatrixBetweenContrast)
	assert.Contains(t, names, design.MatrixSigmaError)
}

func TestValidationErrorIs400(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	d := testkit.TwoGroupDesign()
	d.SampleSizes = make([]int, 80)
	for i := range d.SampleSizes {
		d.SampleSizes[i] = i + 2
	}

	w := post(t, router, "/power", d)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Error, "80 Group Sizes")
}

func TestEmptyClusterIs400(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	d := testkit.TwoGroupDesign()
	d.ClusteringTree = []design.ClusterNode{{GroupName: "clinic", GroupSize: 0}}

	for _, path := range []string{"/power", "/matrix"} {
		w := post(t, router, path, d)
		require.Equal(t, http.StatusBadRequest, w.Code, path)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		assert.Equal(t, "Invalid group size 0 for cluster 'clinic'", resp.Error)
	}
}

func TestMalformedBodyIs400(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	w := post(t, router, "/power", `{"viewTypeEnum": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid study design")
}

func TestBodyLimit(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 64)

	w := post(t, router, "/power", testkit.TwoGroupDesign())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestEngineBadInputIs400Truncated(t *testing.T) {
	msg := strings.Repeat("y", 80)
	engine := ports.PowerEngineFunc(func(ctx context.Context, p *power.Parameters) ([]power.EngineResult, error) {
		return nil, core.NewEngineValidationError("%s", msg)
	})
	router := newTestRouter(t, engine, 0)

	w := post(t, router, "/difference", testkit.TwoGroupDesign())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, strings.Repeat("y", 50)+" ... (more text deleted) ...", resp.Error)
}

func TestInternalErrorIs500Generic(t *testing.T) {
	engine := ports.PowerEngineFunc(func(ctx context.Context, p *power.Parameters) ([]power.EngineResult, error) {
		panic("index out of range in solver")
	})
	router := newTestRouter(t, engine, 0)

	w := post(t, router, "/power", testkit.TwoGroupDesign())
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Exception during computation", resp.Error)
	assert.NotContains(t, w.Body.String(), "solver")
}

func TestPowerReport(t *testing.T) {
	router := newTestRouter(t, glmm.NewEngine(nil), 0)

	d := testkit.TwoGroupDesign()
	d.Alphas = []float64{0.01, 0.05}
	w := post(t, router, "/power/report.xlsx", d)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(excel.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
