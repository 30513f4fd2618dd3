package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/llm"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/scrape"
)

// --- Model client mock ---

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Complete(ctx context.Context, phase model.PhaseName, user, system string, opts llm.Options) (*llm.Result, error) {
	args := m.Called(ctx, phase, user, system, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Result), args.Error(1)
}

func (m *mockModel) Ready(phase model.PhaseName) error {
	args := m.Called(phase)
	return args.Error(0)
}

// onPhase sets up one completion expectation for phase.
func (m *mockModel) onPhase(phase model.PhaseName) *mock.Call {
	return m.On("Complete", mock.Anything, phase, mock.Anything, mock.Anything, mock.Anything)
}

// --- Search mocks ---

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchResponse), args.Error(1)
}

type mockPanel struct {
	mock.Mock
}

func (m *mockPanel) Lookup(ctx context.Context, query string) (*model.KnowledgePanel, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.KnowledgePanel), args.Error(1)
}

// --- Page fetcher mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Scrape(ctx context.Context, url string) (*scrape.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Page), args.Error(1)
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, in model.Input) (*model.Run, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	args := m.Called(ctx, runID, status, errMsg)
	return args.Error(0)
}

func (m *mockStore) SaveReport(ctx context.Context, runID string, report *model.Report) error {
	args := m.Called(ctx, runID, report)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) GetReport(ctx context.Context, runID string) (*model.Report, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *mockStore) SaveCheckpoint(ctx context.Context, runID string, cp model.Checkpoint) error {
	args := m.Called(ctx, runID, cp)
	return args.Error(0)
}

func (m *mockStore) GetCheckpoint(ctx context.Context, runID string) (*model.Checkpoint, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Checkpoint), args.Error(1)
}

func (m *mockStore) SavePhaseArtifact(ctx context.Context, rec model.PhaseRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) ListPhaseArtifacts(ctx context.Context, runID string) ([]model.PhaseRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PhaseRecord), args.Error(1)
}

func (m *mockStore) Write(ctx context.Context, name string, payload any) error {
	args := m.Called(ctx, name, payload)
	return args.Error(0)
}

func (m *mockStore) Read(ctx context.Context, name string) (json.RawMessage, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Helpers ---

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// jsonResult is a successful completion whose reply is raw.
func jsonResult(raw string) *llm.Result {
	return &llm.Result{
		Raw:      raw,
		Parsed:   json.RawMessage(raw),
		Model:    "claude-test",
		Provider: "anthropic",
		Usage:    model.TokenUsage{PromptTokens: 100, CompletionTokens: 50, Cost: 0.001},
		Attempts: 1,
	}
}

// textResult is a successful plain-text completion.
func textResult(raw string) *llm.Result {
	return &llm.Result{
		Raw:      raw,
		Model:    "claude-test",
		Provider: "anthropic",
		Usage:    model.TokenUsage{PromptTokens: 400, CompletionTokens: 300, Cost: 0.01},
		Attempts: 1,
	}
}

func testScoring() config.ScoringConfig {
	return config.DefaultScoring()
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Pipeline: config.DefaultPipeline(),
		Scoring:  config.DefaultScoring(),
	}
	cfg.Pipeline.Pacing.Enabled = false
	return cfg
}

// organic builds a search response with links at positions 1..n.
func organic(query string, links ...string) model.SearchResponse {
	resp := model.SearchResponse{Query: query, Organic: []model.OrganicResult{}}
	for i, l := range links {
		resp.Organic = append(resp.Organic, model.OrganicResult{
			Title:    l,
			Link:     l,
			Snippet:  "About " + l,
			Position: i + 1,
		})
	}
	return resp
}
