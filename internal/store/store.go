// Package store persists pipeline runs, checkpoints, phase artifacts,
// reports and named payloads.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, in model.Input) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	SaveReport(ctx context.Context, runID string, report *model.Report) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
	GetReport(ctx context.Context, runID string) (*model.Report, error)

	// Phases
	SaveCheckpoint(ctx context.Context, runID string, cp model.Checkpoint) error
	GetCheckpoint(ctx context.Context, runID string) (*model.Checkpoint, error)
	SavePhaseArtifact(ctx context.Context, rec model.PhaseRecord) error
	ListPhaseArtifacts(ctx context.Context, runID string) ([]model.PhaseRecord, error)

	// Named payloads. Read of a missing name returns (nil, nil).
	Write(ctx context.Context, name string, payload any) error
	Read(ctx context.Context, name string) (json.RawMessage, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func rawOrNull(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}

// sortByPhase orders records by pipeline phase order.
func sortByPhase(recs []model.PhaseRecord) {
	order := func(p model.PhaseName) int {
		if i := slices.Index(model.Phases, p); i >= 0 {
			return i
		}
		return len(model.Phases)
	}
	slices.SortStableFunc(recs, func(a, b model.PhaseRecord) int {
		return order(a.Phase) - order(b.Phase)
	})
}
