package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusAborted  RunStatus = "aborted"
)

// Run is a persisted pipeline execution.
type Run struct {
	ID        string    `json:"id"`
	Input     Input     `json:"input"`
	Status    RunStatus `json:"status"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunFilter restricts ListRuns results.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}

// Checkpoint is the last-completed-phase marker of a run.
type Checkpoint struct {
	Phase     PhaseName       `json:"phase"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// PhaseRecord is a persisted phase artifact.
type PhaseRecord struct {
	RunID     string          `json:"run_id"`
	Phase     PhaseName       `json:"phase"`
	Skipped   bool            `json:"skipped"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}
