package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/scrape"
)

const acmeDescription = "Acme Corp sells industrial widgets in Austin, TX"

// pipelineModel answers every phase with a small, valid completion.
func pipelineModel() *mockModel {
	m := &mockModel{}
	m.On("Ready", mock.Anything).Return(nil)
	m.onPhase(model.PhaseIdentity).Return(jsonResult(`{"name":{"value":"Acme Corp","confidence":0.8},"location":{"value":"Austin, TX","confidence":0.8}}`), nil)
	m.onPhase(model.PhasePresence).Return(jsonResult(`{"profiles":[{"platform":"google","rating":4.5,"confidence":0.6}],"confidence":0.6}`), nil)
	m.onPhase(model.PhaseMarketing).Return(jsonResult(`{"sales_process":"consultative","sales_process_confidence":0.6}`), nil)
	m.onPhase(model.PhaseCompetitor).Return(jsonResult(`{"competitors":[{"name":"Rival Widgets","confidence":0.6}]}`), nil)
	m.onPhase(model.PhaseConsolidation).Return(textResult("## Executive Summary\nAcme sells widgets."), nil)
	return m
}

// sequentialIDs returns id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type transitions struct {
	states []State
}

func (tr *transitions) record(from, to State) {
	if len(tr.states) == 0 {
		tr.states = append(tr.states, from)
	}
	tr.states = append(tr.states, to)
}

func noPacing() *Pacer {
	return NewPacer(config.PacingConfig{})
}

func disabled() *bool {
	off := false
	return &off
}

func TestRun_FullPipeline(t *testing.T) {
	// Package init goroutines (the opencensus view worker pulled in by genai) predate the test.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := &transitions{}
	m := pipelineModel()
	o := New(testConfig(), m, WithIDs(sequentialIDs()), OnTransition(tr.record), WithAgentOptions(WithClock(fixedClock)))

	rep, err := o.Run(context.Background(), model.Input{Description: acmeDescription})
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, []State{
		StateIdle, StateIdentity, StatePresence, StateMarketing, StateCompetitor, StateConsolidate, StateDone,
	}, tr.states)

	assert.Equal(t, "id-1", rep.RunID)
	assert.Equal(t, "id-2", rep.ReportID)
	assert.Equal(t, acmeDescription, rep.Target)
	assert.Equal(t, fixedNow, rep.GeneratedAt)
	assert.Equal(t, model.ReportComplete, rep.Status)
	assert.Contains(t, rep.DataQuality.PhasesCompleted, model.PhaseIdentity)
	assert.Greater(t, rep.OverallConfidence, 0.0)
	assert.Equal(t, "Acme Corp", rep.Summary.BusinessName)
	assert.Contains(t, rep.Markdown, "Acme sells widgets.")

	require.NotNil(t, rep.PhaseOutputs.Identity)
	assert.Equal(t, model.ModeEstimation, rep.PhaseOutputs.Identity.Mode)
	for _, phase := range []model.PhaseName{
		model.PhaseIdentity, model.PhasePresence, model.PhaseMarketing, model.PhaseCompetitor, model.PhaseConsolidation,
	} {
		m.AssertCalled(t, "Ready", phase)
	}
	m.AssertNumberOfCalls(t, "Complete", 5)
}

func TestRun_DisabledReturnsNil(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Enabled = false
	m := &mockModel{}

	rep, err := New(cfg, m).Run(context.Background(), model.Input{Description: acmeDescription})
	assert.NoError(t, err)
	assert.Nil(t, rep)
	m.AssertNotCalled(t, "Ready", mock.Anything)
}

func TestRun_UnusableInputAborts(t *testing.T) {
	tr := &transitions{}
	st := &mockStore{}
	m := &mockModel{}

	_, err := New(testConfig(), m, WithStore(st), OnTransition(tr.record)).Run(context.Background(), model.Input{URL: "   "})

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, ErrUnusableInput)
	assert.Equal(t, StateIdle, re.State)
	assert.Nil(t, re.Checkpoint)
	assert.Equal(t, []State{StateIdle, StateAborted}, tr.states)
	st.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "UpdateRunStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_NilClientAborts(t *testing.T) {
	_, err := New(testConfig(), nil).Run(context.Background(), model.Input{Description: acmeDescription})

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "no model client")
}

func TestRun_ModelNotReadyAborts(t *testing.T) {
	m := &mockModel{}
	m.On("Ready", model.PhaseIdentity).Return(nil)
	m.On("Ready", model.PhasePresence).Return(errors.New("llm: no api key for external_presence"))

	_, err := New(testConfig(), m).Run(context.Background(), model.Input{Description: acmeDescription})

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StateIdle, re.State)
	assert.Contains(t, err.Error(), "model not ready")
	m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SkippedPhase(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Phases.ExternalPresence = disabled()

	m := pipelineModel()
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-9"}, nil)
	st.On("SaveCheckpoint", mock.Anything, "run-9", mock.Anything).Return(nil)
	st.On("SavePhaseArtifact", mock.Anything, mock.Anything).Return(nil)
	st.On("SaveReport", mock.Anything, "run-9", mock.Anything).Return(nil)
	st.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateRunStatus", mock.Anything, "run-9", model.RunStatusComplete, "").Return(nil)

	rep, err := New(cfg, m, WithStore(st)).Run(context.Background(), model.Input{Description: acmeDescription})
	require.NoError(t, err)

	assert.Nil(t, rep.PhaseOutputs.Presence)
	assert.Contains(t, rep.DataQuality.PhasesMissing, model.PhasePresence)
	m.AssertNotCalled(t, "Ready", model.PhasePresence)
	m.AssertNotCalled(t, "Complete", mock.Anything, model.PhasePresence, mock.Anything, mock.Anything, mock.Anything)

	st.AssertCalled(t, "SavePhaseArtifact", mock.Anything, mock.MatchedBy(func(rec model.PhaseRecord) bool {
		return rec.Phase == model.PhasePresence && rec.Skipped && string(rec.Data) == "null"
	}))
	st.AssertNumberOfCalls(t, "SavePhaseArtifact", 4)
}

func TestRun_PersistsRunAndLatestReport(t *testing.T) {
	m := pipelineModel()
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.MatchedBy(func(in model.Input) bool {
		return in.Description == acmeDescription
	})).Return(&model.Run{ID: "stored-7", Status: model.RunStatusRunning}, nil)
	st.On("SaveCheckpoint", mock.Anything, "stored-7", mock.Anything).Return(nil)
	st.On("SavePhaseArtifact", mock.Anything, mock.MatchedBy(func(rec model.PhaseRecord) bool {
		return rec.RunID == "stored-7" && !rec.Skipped
	})).Return(nil)
	st.On("SaveReport", mock.Anything, "stored-7", mock.Anything).Return(nil)
	st.On("Write", mock.Anything, ReportKey(acmeDescription), mock.Anything).Return(nil)
	st.On("UpdateRunStatus", mock.Anything, "stored-7", model.RunStatusComplete, "").Return(nil)

	rep, err := New(testConfig(), m, WithStore(st), WithIDs(sequentialIDs())).Run(context.Background(), model.Input{Description: acmeDescription})
	require.NoError(t, err)

	assert.Equal(t, "stored-7", rep.RunID)
	st.AssertNumberOfCalls(t, "SaveCheckpoint", 4)
	st.AssertCalled(t, "SaveCheckpoint", mock.Anything, "stored-7", mock.MatchedBy(func(cp model.Checkpoint) bool {
		return cp.Phase == model.PhaseCompetitor && len(cp.Data) > 0 && !cp.Timestamp.IsZero()
	}))
	st.AssertExpectations(t)
}

func TestRun_StoreErrorsDoNotAbort(t *testing.T) {
	m := pipelineModel()
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(nil, errors.New("database is locked"))
	st.On("SaveCheckpoint", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	st.On("SavePhaseArtifact", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	st.On("SaveReport", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	st.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	st.On("UpdateRunStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	rep, err := New(testConfig(), m, WithStore(st), WithIDs(sequentialIDs())).Run(context.Background(), model.Input{Description: acmeDescription})
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, "id-1", rep.RunID)
}

func TestRun_FailedReportMarksRunFailed(t *testing.T) {
	m := &mockModel{}
	m.On("Ready", mock.Anything).Return(nil)
	m.onPhase(model.PhaseIdentity).Return(jsonResult(`{"name":{"value":"Acme Corp","confidence":0.8}}`), nil)
	m.onPhase(model.PhasePresence).Return(jsonResult(`{}`), nil)
	m.onPhase(model.PhaseMarketing).Return(jsonResult(`{}`), nil)
	m.onPhase(model.PhaseCompetitor).Return(jsonResult(`{}`), nil)
	m.onPhase(model.PhaseConsolidation).Return(nil, errors.New("llm: all models failed"))

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-3"}, nil)
	st.On("SaveCheckpoint", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("SavePhaseArtifact", mock.Anything, mock.Anything).Return(nil)
	st.On("SaveReport", mock.Anything, "run-3", mock.Anything).Return(nil)
	st.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateRunStatus", mock.Anything, "run-3", model.RunStatusFailed, "report synthesis failed").Return(nil)

	rep, err := New(testConfig(), m, WithStore(st)).Run(context.Background(), model.Input{Description: acmeDescription})
	require.NoError(t, err)
	assert.Equal(t, model.ReportFailed, rep.Status)
	st.AssertExpectations(t)
}

func TestRun_PanicIsRecoveredWithCheckpoint(t *testing.T) {
	tr := &transitions{}
	m := &mockModel{}
	m.On("Ready", mock.Anything).Return(nil)
	m.onPhase(model.PhaseIdentity).Return(jsonResult(`{"name":{"value":"Acme Corp","confidence":0.8}}`), nil)
	m.onPhase(model.PhasePresence).Return(jsonResult(`{}`), nil)
	m.onPhase(model.PhaseMarketing).Run(func(mock.Arguments) { panic("kaboom") })

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-5"}, nil)
	st.On("SaveCheckpoint", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("SavePhaseArtifact", mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateRunStatus", mock.Anything, "run-5", model.RunStatusAborted, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "panic: kaboom")
	})).Return(nil)

	rep, err := New(testConfig(), m, WithStore(st), OnTransition(tr.record)).Run(context.Background(), model.Input{Description: acmeDescription})
	assert.Nil(t, rep)

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "run-5", re.RunID)
	assert.Equal(t, StateMarketing, re.State)
	require.NotNil(t, re.Checkpoint)
	assert.Equal(t, model.PhasePresence, re.Checkpoint.Phase)
	assert.Contains(t, err.Error(), "panic: kaboom")
	assert.Equal(t, StateAborted, tr.states[len(tr.states)-1])
	st.AssertExpectations(t)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	m := pipelineModel()
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-c"}, nil)
	st.On("UpdateRunStatus", mock.Anything, "run-c", model.RunStatusAborted, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(), m, WithStore(st)).Run(ctx, model.Input{Description: acmeDescription})

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, re.State)
	st.AssertExpectations(t)
	m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PacesBetweenExecutedPhases(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Phases.ExternalPresence = disabled()

	var waits []time.Duration
	p := NewPacer(config.PacingConfig{Enabled: true, MinDelayMs: 1500, MaxDelayMs: 4000})
	p.rand = func(int64) int64 { return 500 }
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := New(cfg, pipelineModel(), WithPacer(p)).Run(context.Background(), model.Input{Description: acmeDescription})
	require.NoError(t, err)

	// identity, marketing and competitor ran; the skipped phase is not paced.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waits)
}

func TestRun_CancelDuringPacingAborts(t *testing.T) {
	p := NewPacer(config.PacingConfig{Enabled: true, MinDelayMs: 1500, MaxDelayMs: 1500})
	p.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	_, err := New(testConfig(), pipelineModel(), WithPacer(p)).Run(context.Background(), model.Input{Description: acmeDescription})

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StatePresence, re.State)
	require.NotNil(t, re.Checkpoint)
	assert.Equal(t, model.PhaseIdentity, re.Checkpoint.Phase)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_FetchesPageForURLOnlyInput(t *testing.T) {
	f := &mockFetcher{}
	f.On("Scrape", mock.Anything, "https://acme.test").
		Return(&scrape.Page{URL: "https://acme.test", HTML: acmePage, Text: "Acme Corp. We sell widgets.", Source: "local"}, nil)

	rep, err := New(testConfig(), pipelineModel(), WithFetcher(f), WithPacer(noPacing())).
		Run(context.Background(), model.Input{URL: "https://acme.test", Description: acmeDescription})
	require.NoError(t, err)

	assert.Equal(t, model.ModeRich, rep.PhaseOutputs.Identity.Mode)
	assert.Equal(t, model.SourceContent, rep.PhaseOutputs.Identity.DataSource)
	assert.Equal(t, "https://acme.test", rep.Target)
	f.AssertExpectations(t)
}

func TestRun_FetchFailureDegradesToDescription(t *testing.T) {
	f := &mockFetcher{}
	f.On("Scrape", mock.Anything, "https://acme.test").Return(nil, errors.New("dial tcp: connection refused"))

	rep, err := New(testConfig(), pipelineModel(), WithFetcher(f)).
		Run(context.Background(), model.Input{URL: "https://acme.test", Description: acmeDescription})
	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, model.ModeEstimation, rep.PhaseOutputs.Identity.Mode)
	assert.Equal(t, model.SourceDescription, rep.PhaseOutputs.Identity.DataSource)
}

func TestRun_SuppliedContentSkipsFetch(t *testing.T) {
	f := &mockFetcher{}

	_, err := New(testConfig(), pipelineModel(), WithFetcher(f)).
		Run(context.Background(), model.Input{URL: "https://acme.test", HTML: acmePage})
	require.NoError(t, err)
	f.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
}

func TestExecute_ReturnsNilAndLogsAbort(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	m := &mockModel{}
	m.On("Ready", mock.Anything).Return(nil)
	m.onPhase(model.PhaseIdentity).Return(jsonResult(`{}`), nil)
	m.onPhase(model.PhasePresence).Run(func(mock.Arguments) { panic("nil map") })

	o := New(testConfig(), m, WithIDs(func() string { return "run-x" }))

	assert.NotPanics(t, func() {
		assert.Nil(t, o.Execute(context.Background(), model.Input{Description: acmeDescription}))
	})

	entries := logs.FilterMessage("pipeline: run aborted")
	require.Equal(t, 1, entries.Len())
	fields := entries.All()[0].ContextMap()
	assert.Equal(t, "run-x", fields["run_id"])
	assert.Equal(t, string(StatePresence), fields["state"])
	assert.Equal(t, string(model.PhaseIdentity), fields["checkpoint_phase"])
}

func TestExecute_ReturnsReport(t *testing.T) {
	rep := New(testConfig(), pipelineModel()).Execute(context.Background(), model.Input{Description: acmeDescription})
	require.NotNil(t, rep)
	assert.Equal(t, model.ReportComplete, rep.Status)
}

func TestRunError_Unwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &RunError{RunID: "r1", State: StateCompetitor, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "pipeline: run r1 aborted in competitor_analysis: boom", err.Error())
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "report:https://acme.test", ReportKey("  HTTPS://Acme.test "))
	assert.Equal(t, ReportKey("Acme"), ReportKey("acme"))
}
