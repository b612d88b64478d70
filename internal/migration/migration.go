package migration

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"powersvc/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner applies the run ledger schema. Every step is idempotent
// and valid for both postgres and sqlite.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	if err := r.createPowerRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create power_runs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	if err := r.recordVersion(ctx, db); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}

	return nil
}

func (r *MigrationRunner) createPowerRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS power_runs (
			id             TEXT PRIMARY KEY,
			kind           TEXT NOT NULL,
			state          TEXT NOT NULL,
			design_hash    TEXT NOT NULL DEFAULT '',
			cases          INTEGER NOT NULL DEFAULT 0,
			result_count   INTEGER NOT NULL DEFAULT 0,
			duration_ms    BIGINT NOT NULL DEFAULT 0,
			error_code     TEXT NOT NULL DEFAULT '',
			client_message TEXT NOT NULL DEFAULT '',
			detail         TEXT NOT NULL DEFAULT '',
			created_at     BIGINT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_power_runs_created ON power_runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_power_runs_hash ON power_runs(design_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_power_runs_state ON power_runs(state)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *MigrationRunner) recordVersion(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT PRIMARY KEY
		)
	`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO schema_version (version) VALUES (?)
		ON CONFLICT (version) DO NOTHING
	`), r.version)
	return err
}

// AppliedVersions lists the schema versions recorded in db
func AppliedVersions(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var versions []string
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_version ORDER BY version`); err != nil {
		return nil, err
	}
	return versions, nil
}
