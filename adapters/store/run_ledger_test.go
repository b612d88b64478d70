package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersvc/domain/core"
	"powersvc/domain/run"
)

func newTestLedger(t *testing.T) *RunLedger {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := Open(context.Background(), "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunLedger(db).(*RunLedger)
}

func TestRecordAndGet(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec := run.NewRecord(core.NewRequestID(), run.KindSampleSize, core.Hash("abc123"))
	rec.Cases = 12
	rec.ResultCount = 12
	rec.Finish(run.StateCompleted, time.Now().Add(-40*time.Millisecond))
	require.NoError(t, ledger.Record(ctx, rec))

	got, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, run.KindSampleSize, got.Kind)
	assert.Equal(t, run.StateCompleted, got.State)
	assert.Equal(t, core.Hash("abc123"), got.DesignHash)
	assert.Equal(t, 12, got.Cases)
	assert.Equal(t, rec.DurationMs, got.DurationMs)
	assert.Equal(t, rec.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestRecordReplacesSameID(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	rec := run.NewRecord(core.NewRequestID(), run.KindPower, "")
	require.NoError(t, ledger.Record(ctx, rec))

	rec.ErrorCode = "TIMEOUT"
	rec.ClientMessage = "Request timed out during computation"
	rec.Detail = "context deadline exceeded"
	rec.Finish(run.StateTimedOut, time.Now())
	require.NoError(t, ledger.Record(ctx, rec))

	got, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StateTimedOut, got.State)
	assert.Equal(t, "TIMEOUT", got.ErrorCode)
	assert.Equal(t, "context deadline exceeded", got.Detail)

	recent, err := ledger.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestGetUnknown(t *testing.T) {
	ledger := newTestLedger(t)
	_, err := ledger.Get(context.Background(), core.NewRequestID())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecentNewestFirst(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []core.RequestID
	for i := 0; i < 5; i++ {
		rec := run.NewRecord(core.NewRequestID(), run.KindPower, "")
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, ledger.Record(ctx, rec))
		ids = append(ids, rec.ID)
	}

	recent, err := ledger.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[4], recent[0].ID)
	assert.Equal(t, ids[3], recent[1].ID)
	assert.Equal(t, ids[2], recent[2].ID)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	assert.Error(t, err)
}

func TestRecordNil(t *testing.T) {
	ledger := newTestLedger(t)
	assert.Error(t, ledger.Record(context.Background(), nil))
}
