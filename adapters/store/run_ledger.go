// Package store persists the run ledger in postgres or sqlite through sqlx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"powersvc/domain/core"
	"powersvc/domain/run"
	"powersvc/internal/migration"
	"powersvc/ports"
)

// ErrRunNotFound is returned by Get for unknown request ids
var ErrRunNotFound = errors.New("run not found")

// Open connects to the ledger database and applies the schema. driver is
// "postgres" or "sqlite".
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}

	db, err := sqlx.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", driver, err)
	}
	if driver == "sqlite" {
		// single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger connection test failed: %w", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// runRow is the storage shape of run.Record; timestamps are unix millis so
// both drivers scan them the same way.
type runRow struct {
	ID            string `db:"id"`
	Kind          string `db:"kind"`
	State         string `db:"state"`
	DesignHash    string `db:"design_hash"`
	Cases         int    `db:"cases"`
	ResultCount   int    `db:"result_count"`
	DurationMs    int64  `db:"duration_ms"`
	ErrorCode     string `db:"error_code"`
	ClientMessage string `db:"client_message"`
	Detail        string `db:"detail"`
	CreatedAt     int64  `db:"created_at"`
}

func toRow(rec *run.Record) runRow {
	return runRow{
		ID:            rec.ID.String(),
		Kind:          string(rec.Kind),
		State:         string(rec.State),
		DesignHash:    rec.DesignHash.String(),
		Cases:         rec.Cases,
		ResultCount:   rec.ResultCount,
		DurationMs:    rec.DurationMs,
		ErrorCode:     rec.ErrorCode,
		ClientMessage: rec.ClientMessage,
		Detail:        rec.Detail,
		CreatedAt:     rec.CreatedAt.UnixMilli(),
	}
}

func (r runRow) record() *run.Record {
	return &run.Record{
		ID:            core.RequestID(r.ID),
		Kind:          run.Kind(r.Kind),
		State:         run.State(r.State),
		DesignHash:    core.Hash(r.DesignHash),
		Cases:         r.Cases,
		ResultCount:   r.ResultCount,
		DurationMs:    r.DurationMs,
		ErrorCode:     r.ErrorCode,
		ClientMessage: r.ClientMessage,
		Detail:        r.Detail,
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// RunLedger implements ports.RunLedger over sqlx
type RunLedger struct {
	db *sqlx.DB
}

// NewRunLedger creates a ledger on an opened database
func NewRunLedger(db *sqlx.DB) ports.RunLedger {
	return &RunLedger{db: db}
}

// Record inserts rec, replacing an earlier record with the same id
func (l *RunLedger) Record(ctx context.Context, rec *run.Record) error {
	if rec == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO power_runs (id, kind, state, design_hash, cases, result_count,
			duration_ms, error_code, client_message, detail, created_at)
		VALUES (:id, :kind, :state, :design_hash, :cases, :result_count,
			:duration_ms, :error_code, :client_message, :detail, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			cases = excluded.cases,
			result_count = excluded.result_count,
			duration_ms = excluded.duration_ms,
			error_code = excluded.error_code,
			client_message = excluded.client_message,
			detail = excluded.detail
	`, toRow(rec))
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves one run by request id
func (l *RunLedger) Get(ctx context.Context, id core.RequestID) (*run.Record, error) {
	var row runRow
	err := l.db.GetContext(ctx, &row, l.db.Rebind(`
		SELECT id, kind, state, design_hash, cases, result_count, duration_ms,
			error_code, client_message, detail, created_at
		FROM power_runs
		WHERE id = ?
	`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return row.record(), nil
}

// Recent lists the newest runs first
func (l *RunLedger) Recent(ctx context.Context, limit int) ([]*run.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := l.db.SelectContext(ctx, &rows, l.db.Rebind(`
		SELECT id, kind, state, design_hash, cases, result_count, duration_ms,
			error_code, client_message, detail, created_at
		FROM power_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}

	out := make([]*run.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}
