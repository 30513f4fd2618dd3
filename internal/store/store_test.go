package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleReport(runID string) *model.Report {
	return &model.Report{
		ReportID:          "rep-1",
		RunID:             runID,
		GeneratedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:            model.ReportComplete,
		Target:            "https://acme.test",
		Markdown:          "# Market Intelligence Report: Acme Corp\n",
		OverallConfidence: 0.7167,
		PhaseConfidences: map[model.PhaseName]float64{
			model.PhaseIdentity:  0.8,
			model.PhaseMarketing: 0.6,
		},
		DataQuality: model.DataQuality{
			PhasesCompleted:    []model.PhaseName{model.PhaseIdentity, model.PhaseMarketing},
			PhasesMissing:      []model.PhaseName{model.PhasePresence, model.PhaseCompetitor},
			LowConfidenceAreas: []string{},
		},
		Summary: model.ReportSummary{BusinessName: "Acme Corp"},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		in := model.Input{
			URL:         "https://acme.test",
			Description: "Widget supplier",
			Keywords:    []string{"widgets"},
		}

		run, err := s.CreateRun(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)
		assert.Equal(t, in.URL, run.Input.URL)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		assert.Equal(t, in, got.Input)
		assert.Nil(t, got.Report)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRun(context.Background(), "nonexistent-id")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.Input{Description: "bakery"})
		require.NoError(t, err)

		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusAborted, "panic: kaboom"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusAborted, got.Status)
		assert.Equal(t, "panic: kaboom", got.Error)
	})

	t.Run("UpdateRunStatusNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.UpdateRunStatus(context.Background(), "nonexistent-id", model.RunStatusComplete, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.Input{URL: "https://acme.test"})
		require.NoError(t, err)

		none, err := s.GetReport(ctx, run.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		want := sampleReport(run.ID)
		require.NoError(t, s.SaveReport(ctx, run.ID, want))

		got, err := s.GetReport(ctx, run.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.OverallConfidence, got.OverallConfidence)
		assert.Equal(t, want.DataQuality, got.DataQuality)
		assert.Equal(t, want.PhaseConfidences, got.PhaseConfidences)
		assert.True(t, want.GeneratedAt.Equal(got.GeneratedAt))

		withReport, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.NotNil(t, withReport.Report)
		assert.Equal(t, "Acme Corp", withReport.Report.Summary.BusinessName)
	})

	t.Run("SaveReportNotFound", func(t *testing.T) {
		s := newStore(t)

		err := s.SaveReport(context.Background(), "missing", sampleReport("missing"))
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetReport(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for _, d := range []string{"first", "second", "third"} {
			run, err := s.CreateRun(ctx, model.Input{Description: d})
			require.NoError(t, err)
			ids = append(ids, run.ID)
			time.Sleep(5 * time.Millisecond)
		}
		require.NoError(t, s.UpdateRunStatus(ctx, ids[1], model.RunStatusComplete, ""))

		all, err := s.ListRuns(ctx, model.RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "third", all[0].Input.Description)
		assert.Nil(t, all[0].Report)

		complete, err := s.ListRuns(ctx, model.RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, complete, 1)
		assert.Equal(t, ids[1], complete[0].ID)

		page, err := s.ListRuns(ctx, model.RunFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "second", page[0].Input.Description)
	})

	t.Run("ListRunsEmpty", func(t *testing.T) {
		s := newStore(t)

		runs, err := s.ListRuns(context.Background(), model.RunFilter{})
		require.NoError(t, err)
		assert.NotNil(t, runs)
		assert.Empty(t, runs)
	})

	t.Run("CheckpointOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.Input{Description: "bakery"})
		require.NoError(t, err)

		missing, err := s.GetCheckpoint(ctx, run.ID)
		require.NoError(t, err)
		assert.Nil(t, missing)

		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveCheckpoint(ctx, run.ID, model.Checkpoint{
			Phase: model.PhaseIdentity, Data: json.RawMessage(`{"phase":"identity"}`), Timestamp: ts,
		}))
		require.NoError(t, s.SaveCheckpoint(ctx, run.ID, model.Checkpoint{
			Phase: model.PhasePresence, Data: nil, Timestamp: ts.Add(time.Second),
		}))

		cp, err := s.GetCheckpoint(ctx, run.ID)
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, model.PhasePresence, cp.Phase)
		assert.JSONEq(t, `null`, string(cp.Data))
		assert.True(t, ts.Add(time.Second).Equal(cp.Timestamp))
	})

	t.Run("PhaseArtifacts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, model.Input{Description: "bakery"})
		require.NoError(t, err)

		for _, rec := range []model.PhaseRecord{
			{RunID: run.ID, Phase: model.PhaseCompetitor, Data: json.RawMessage(`{"a":1}`)},
			{RunID: run.ID, Phase: model.PhasePresence, Skipped: true},
			{RunID: run.ID, Phase: model.PhaseIdentity, Data: json.RawMessage(`{"b":2}`)},
			{RunID: run.ID, Phase: model.PhaseIdentity, Data: json.RawMessage(`{"b":3}`)},
		} {
			require.NoError(t, s.SavePhaseArtifact(ctx, rec))
		}

		recs, err := s.ListPhaseArtifacts(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, model.PhaseIdentity, recs[0].Phase)
		assert.JSONEq(t, `{"b":3}`, string(recs[0].Data))
		assert.Equal(t, model.PhasePresence, recs[1].Phase)
		assert.True(t, recs[1].Skipped)
		assert.JSONEq(t, `null`, string(recs[1].Data))
		assert.Equal(t, model.PhaseCompetitor, recs[2].Phase)

		none, err := s.ListPhaseArtifacts(ctx, "other-run")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("WriteAndRead", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		missing, err := s.Read(ctx, "report:https://acme.test")
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, s.Write(ctx, "report:https://acme.test", map[string]any{"v": 1}))
		require.NoError(t, s.Write(ctx, "report:https://acme.test", map[string]any{"v": 2}))

		got, err := s.Read(ctx, "report:https://acme.test")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got))
	})

	t.Run("WriteUnmarshalable", func(t *testing.T) {
		s := newStore(t)

		err := s.Write(context.Background(), "bad", make(chan int))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "marshal payload")
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_CheckpointRequiresRun(t *testing.T) {
	s := newTestSQLite(t)

	err := s.SaveCheckpoint(context.Background(), "no-such-run", model.Checkpoint{
		Phase: model.PhaseIdentity, Timestamp: time.Now(),
	})
	assert.Error(t, err)
}

func TestSortByPhase(t *testing.T) {
	recs := []model.PhaseRecord{
		{Phase: "unknown"},
		{Phase: model.PhaseMarketing},
		{Phase: model.PhaseIdentity},
	}
	sortByPhase(recs)
	assert.Equal(t, model.PhaseIdentity, recs[0].Phase)
	assert.Equal(t, model.PhaseMarketing, recs[1].Phase)
	assert.Equal(t, model.PhaseName("unknown"), recs[2].Phase)
}
