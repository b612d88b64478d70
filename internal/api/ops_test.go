package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersvc/adapters/store"
	"powersvc/domain/core"
	"powersvc/domain/run"
	"powersvc/internal/compute"
	"powersvc/ports"
)

func newTestOps(t *testing.T) (http.Handler, ports.RunLedger) {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pool := compute.NewPool(time.Second, 0, nil)
	t.Cleanup(func() { _ = pool.Close(context.Background()) })

	ledger := store.NewRunLedger(db)
	return NewOpsRouter(pool, ledger), ledger
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newTestOps(t)

	w := get(router, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Busy)
}

func TestRunsRoutes(t *testing.T) {
	router, ledger := newTestOps(t)

	rec := run.NewRecord(core.NewRequestID(), run.KindPower, "")
	rec.Finish(run.StateFailed, time.Now())
	rec.ErrorCode = "INTERNAL_ERROR"
	rec.Detail = "stack trace"
	require.NoError(t, ledger.Record(context.Background(), rec))

	w := get(router, "/runs/recent?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []run.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rec.ID, runs[0].ID)
	assert.NotContains(t, w.Body.String(), "stack trace")

	w = get(router, "/runs/"+rec.ID.String())
	require.Equal(t, http.StatusOK, w.Code)

	w = get(router, "/runs/"+core.NewRequestID().String())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(router, "/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(router, "/runs/recent?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunsWithoutLedger(t *testing.T) {
	router := NewOpsRouter(nil, nil)
	assert.Equal(t, http.StatusNotFound, get(router, "/runs/recent").Code)
	assert.Equal(t, http.StatusOK, get(router, "/healthz").Code)
}

func TestPprofIndex(t *testing.T) {
	router := NewOpsRouter(nil, nil)
	w := get(router, "/debug/pprof/")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocsRendersReference(t *testing.T) {
	w := get(NewOpsRouter(nil, nil), "/docs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<title>Power service API</title>")
	assert.Contains(t, w.Body.String(), "<table>")
	assert.Contains(t, w.Body.String(), "/samplesize")
}
