package run

import (
	"time"

	"powersvc/domain/core"
)

// State is the lifecycle position of one computation
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateTimedOut  State = "TIMED_OUT"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed
}

// Kind is the request kind that produced a run
type Kind string

const (
	KindPower                Kind = "power"
	KindSampleSize           Kind = "samplesize"
	KindDetectableDifference Kind = "difference"
	KindMatrices             Kind = "matrix"
)

// Record is one ledger entry describing a finished request
type Record struct {
	ID            core.RequestID `db:"id" json:"id"`
	Kind          Kind           `db:"kind" json:"kind"`
	State         State          `db:"state" json:"state"`
	DesignHash    core.Hash      `db:"design_hash" json:"design_hash"`
	Cases         int            `db:"cases" json:"cases"`
	ResultCount   int            `db:"result_count" json:"result_count"`
	DurationMs    int64          `db:"duration_ms" json:"duration_ms"`
	ErrorCode     string         `db:"error_code" json:"error_code,omitempty"`
	ClientMessage string         `db:"client_message" json:"client_message,omitempty"`
	Detail        string         `db:"detail" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// NewRecord starts a record for a request
func NewRecord(id core.RequestID, kind Kind, designHash core.Hash) *Record {
	return &Record{
		ID:         id,
		Kind:       kind,
		State:      StateSubmitted,
		DesignHash: designHash,
		CreatedAt:  time.Now().UTC(),
	}
}

// Finish stamps the terminal state and elapsed time
func (r *Record) Finish(state State, started time.Time) {
	r.State = state
	r.DurationMs = time.Since(started).Milliseconds()
}
