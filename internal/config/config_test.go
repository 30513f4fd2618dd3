package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "market-intel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 2, cfg.Retry.Retries)
	assert.Equal(t, 1000, cfg.Retry.DelayMs)
	assert.Equal(t, "us", cfg.Google.Region)
	assert.Equal(t, "en", cfg.Google.Language)
	assert.Equal(t, 5, cfg.Google.MaxResults)

	assert.True(t, cfg.Pipeline.Enabled)
	assert.True(t, cfg.Pipeline.FetchPage)
	assert.True(t, cfg.Pipeline.Pacing.Enabled)
	assert.Equal(t, 1500, cfg.Pipeline.Pacing.MinDelayMs)
	assert.Equal(t, 4000, cfg.Pipeline.Pacing.MaxDelayMs)
	for _, ph := range model.Phases {
		assert.True(t, cfg.Pipeline.PhaseEnabled(ph), ph)
	}

	w := cfg.Scoring.Weights
	assert.InDelta(t, 0.35, w.Identity, 0.001)
	assert.InDelta(t, 0.20, w.ExternalPresence, 0.001)
	assert.InDelta(t, 0.25, w.MarketingConversion, 0.001)
	assert.InDelta(t, 0.20, w.CompetitorAnalysis, 0.001)
	assert.InDelta(t, 0.5, cfg.Scoring.LowConfidenceThreshold, 0.001)
	assert.InDelta(t, 1.5, cfg.Scoring.NameWeight, 0.001)
	assert.InDelta(t, 0.7, cfg.Scoring.ProofAssetBonus, 0.001)
	assert.Equal(t, 3, cfg.Scoring.CompetitorTopN)

	id := cfg.ModelFor(model.PhaseIdentity)
	assert.Equal(t, "claude-haiku-4-5", id.Model)
	assert.Equal(t, "gemini-2.5-flash", id.Fallback)
	assert.True(t, id.RequiresJSON)

	cons := cfg.ModelFor(model.PhaseConsolidation)
	assert.False(t, cons.RequiresJSON)
	assert.Equal(t, 120, cons.TimeoutSecs)

	assert.NoError(t, cfg.Validate("analyze"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("batch"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/intel
log:
  level: debug
  format: console
pipeline:
  phases:
    external_presence: false
  pacing:
    enabled: false
models:
  identity:
    model: gemini-2.5-flash
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Pipeline.PhaseEnabled(model.PhasePresence))
	assert.True(t, cfg.Pipeline.PhaseEnabled(model.PhaseIdentity))
	assert.False(t, cfg.Pipeline.Pacing.Enabled)

	id := cfg.ModelFor(model.PhaseIdentity)
	assert.Equal(t, "gemini-2.5-flash", id.Model)
	// Unset keys keep their defaults.
	assert.Equal(t, "gemini-2.5-flash", id.Fallback)
	assert.Equal(t, int64(2048), id.MaxTokens)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("MARKET_INTEL_STORE_DRIVER", "postgres")
	t.Setenv("MARKET_INTEL_LOG_LEVEL", "warn")
	t.Setenv("MARKET_INTEL_RETRY_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Retry.Retries)
}

func TestLoadModelsFile(t *testing.T) {
	dir := chdirTemp(t)

	models := `
competitor_analysis:
  model: sonar-pro
  timeout_secs: 30
`
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(models), 0o644))
	t.Setenv("MARKET_INTEL_MODELS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	mc := cfg.ModelFor(model.PhaseCompetitor)
	assert.Equal(t, "sonar-pro", mc.Model)
	assert.Equal(t, 30, mc.TimeoutSecs)
	assert.Equal(t, "gemini-2.5-pro", mc.Fallback)
}

func TestLoadModelsFile_Missing(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MARKET_INTEL_MODELS_FILE", "/nonexistent/models.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadPhaseModels_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("identity: [unclosed"), 0o644))

	_, err := LoadPhaseModels(path)
	assert.Error(t, err)
}

func TestMergePhaseModels(t *testing.T) {
	base := map[string]ModelConfig{
		"identity": {Model: "a", Fallback: "b", Temperature: 0.1, MaxTokens: 100},
	}
	out := MergePhaseModels(base, map[string]ModelConfig{
		"identity":      {Fallback: "c", RequiresJSON: true},
		"consolidation": {Model: "d"},
	})

	assert.Equal(t, ModelConfig{Model: "a", Fallback: "c", Temperature: 0.1, MaxTokens: 100, RequiresJSON: true}, out["identity"])
	assert.Equal(t, "d", out["consolidation"].Model)
	assert.Equal(t, "b", base["identity"].Fallback, "base must not be mutated")
}

func TestModelFor_FallsBackToDefault(t *testing.T) {
	cfg := &Config{Models: map[string]ModelConfig{DefaultModelKey: {Model: "x"}}}
	assert.Equal(t, "x", cfg.ModelFor(model.PhaseMarketing).Model)
}

func TestPhaseEnabled_ExplicitTrue(t *testing.T) {
	on := true
	p := PipelineConfig{Phases: PhaseFlags{CompetitorAnalysis: &on}}
	assert.True(t, p.PhaseEnabled(model.PhaseCompetitor))
}

func TestPhaseWeights_Weight(t *testing.T) {
	w := PhaseWeights{Identity: 1, ExternalPresence: 2, MarketingConversion: 3, CompetitorAnalysis: 4}
	assert.Equal(t, 3.0, w.Weight(model.PhaseMarketing))
	assert.Equal(t, 0.0, w.Weight(model.PhaseConsolidation))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation in every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Batch.Concurrency = 4
	cfg.Server.Port = 8080
	cfg.Scoring.Weights = PhaseWeights{Identity: 0.35, ExternalPresence: 0.2, MarketingConversion: 0.25, CompetitorAnalysis: 0.2}
	cfg.Scoring.LowConfidenceThreshold = 0.5
	cfg.Pipeline.Pacing = PacingConfig{MinDelayMs: 10, MaxDelayMs: 20}
	cfg.Models = defaultModels()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	for _, mode := range []string{"analyze", "batch", "serve", "mcp", "runs"} {
		assert.NoError(t, validDefaults().Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		mutate func(*Config)
		want   string
	}{
		{"negative weight", "analyze", func(c *Config) { c.Scoring.Weights.Identity = -1 }, "must not be negative"},
		{"zero weights", "analyze", func(c *Config) { c.Scoring.Weights = PhaseWeights{} }, "must not all be zero"},
		{"competitor weight", "analyze", func(c *Config) { c.Scoring.Competitor.Snippet = -0.1 }, "scoring.competitor"},
		{"pacing order", "analyze", func(c *Config) { c.Pipeline.Pacing.MinDelayMs = 50 }, "exceeds max_delay_ms"},
		{"threshold", "analyze", func(c *Config) { c.Scoring.LowConfidenceThreshold = 1.5 }, "low_confidence_threshold"},
		{"retry", "analyze", func(c *Config) { c.Retry.Retries = -1 }, "retry settings"},
		{"unknown phase", "analyze", func(c *Config) { c.Models["bogus"] = ModelConfig{} }, "unknown phase bogus"},
		{"driver", "analyze", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"port", "serve", func(c *Config) { c.Server.Port = 0 }, "server.port must be > 0"},
		{"concurrency", "batch", func(c *Config) { c.Batch.Concurrency = 51 }, "batch.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MARKET_INTEL_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("MARKET_INTEL_SERPER_KEY", "serper-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "serper-test", cfg.Serper.Key)
	assert.Empty(t, cfg.Gemini.Key)
}
