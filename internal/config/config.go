package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/market-intel/internal/model"
)

// DefaultModelKey names the fallback entry of the phase model table.
const DefaultModelKey = "default"

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig            `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig        `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig           `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig       `yaml:"perplexity" mapstructure:"perplexity"`
	Serper     SerperConfig           `yaml:"serper" mapstructure:"serper"`
	Jina       JinaConfig             `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig        `yaml:"firecrawl" mapstructure:"firecrawl"`
	Google     GoogleConfig           `yaml:"google" mapstructure:"google"`
	Notion     NotionConfig           `yaml:"notion" mapstructure:"notion"`
	Models     map[string]ModelConfig `yaml:"models" mapstructure:"models"`
	ModelsFile string                 `yaml:"models_file" mapstructure:"models_file"`
	Retry      RetryConfig            `yaml:"retry" mapstructure:"retry"`
	Pipeline   PipelineConfig         `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring    ScoringConfig          `yaml:"scoring" mapstructure:"scoring"`
	Pricing    PricingConfig          `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig            `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For sqlite DatabaseURL is a
// file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SerperConfig holds Serper search settings.
type SerperConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Country string `yaml:"country" mapstructure:"country"`
	Num     int    `yaml:"num" mapstructure:"num"`
}

// JinaConfig holds Jina AI reader and search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl scrape API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Google Places settings.
type GoogleConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Region     string `yaml:"region" mapstructure:"region"`
	Language   string `yaml:"language" mapstructure:"language"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// NotionConfig holds Notion credentials and the report database.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	ReportDB  string  `yaml:"report_db" mapstructure:"report_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ModelConfig selects models and generation parameters for one phase.
type ModelConfig struct {
	Model        string  `yaml:"model" mapstructure:"model"`
	Fallback     string  `yaml:"fallback" mapstructure:"fallback"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequiresJSON bool    `yaml:"requires_json" mapstructure:"requires_json"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryConfig controls model-call retries.
type RetryConfig struct {
	Retries int `yaml:"retries" mapstructure:"retries"`
	DelayMs int `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	Enabled         bool         `yaml:"enabled" mapstructure:"enabled"`
	Phases          PhaseFlags   `yaml:"phases" mapstructure:"phases"`
	Pacing          PacingConfig `yaml:"pacing" mapstructure:"pacing"`
	FetchPage       bool         `yaml:"fetch_page" mapstructure:"fetch_page"`
	Render          bool         `yaml:"render" mapstructure:"render"`
	MaxContentChars int          `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// PhaseFlags enables or skips individual phases. A nil flag means enabled.
type PhaseFlags struct {
	Identity            *bool `yaml:"identity" mapstructure:"identity"`
	ExternalPresence    *bool `yaml:"external_presence" mapstructure:"external_presence"`
	MarketingConversion *bool `yaml:"marketing_conversion" mapstructure:"marketing_conversion"`
	CompetitorAnalysis  *bool `yaml:"competitor_analysis" mapstructure:"competitor_analysis"`
}

// PacingConfig sets the randomized delay between phases.
type PacingConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	MinDelayMs int  `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs int  `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// ScoringConfig holds the confidence coefficients.
type ScoringConfig struct {
	Weights                PhaseWeights      `yaml:"weights" mapstructure:"weights"`
	LowConfidenceThreshold float64           `yaml:"low_confidence_threshold" mapstructure:"low_confidence_threshold"`
	NameWeight             float64           `yaml:"name_weight" mapstructure:"name_weight"`
	ProofAssetBonus        float64           `yaml:"proof_asset_bonus" mapstructure:"proof_asset_bonus"`
	TrackingBonus          float64           `yaml:"tracking_bonus" mapstructure:"tracking_bonus"`
	MatchBonus             float64           `yaml:"match_bonus" mapstructure:"match_bonus"`
	EstimationDiscount     float64           `yaml:"estimation_discount" mapstructure:"estimation_discount"`
	Competitor             CompetitorWeights `yaml:"competitor" mapstructure:"competitor"`
	CompetitorTopN         int               `yaml:"competitor_top_n" mapstructure:"competitor_top_n"`
}

// PhaseWeights weights each phase in the overall confidence.
type PhaseWeights struct {
	Identity            float64 `yaml:"identity" mapstructure:"identity"`
	ExternalPresence    float64 `yaml:"external_presence" mapstructure:"external_presence"`
	MarketingConversion float64 `yaml:"marketing_conversion" mapstructure:"marketing_conversion"`
	CompetitorAnalysis  float64 `yaml:"competitor_analysis" mapstructure:"competitor_analysis"`
}

// CompetitorWeights weights the competitor candidate score terms.
type CompetitorWeights struct {
	Frequency   float64 `yaml:"frequency" mapstructure:"frequency"`
	InverseRank float64 `yaml:"inverse_rank" mapstructure:"inverse_rank"`
	Coverage    float64 `yaml:"coverage" mapstructure:"coverage"`
	Snippet     float64 `yaml:"snippet" mapstructure:"snippet"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Models     map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Serper     SearchPricing           `yaml:"serper" mapstructure:"serper"`
	Jina       SearchPricing           `yaml:"jina" mapstructure:"jina"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityPricing holds the Perplexity per-request fee.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// SearchPricing holds a per-query search fee.
type SearchPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// MonitoringConfig configures run health alerts sent while serving.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinConfidence        float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PhaseEnabled reports whether phase runs. Absent flags default to enabled.
func (p PipelineConfig) PhaseEnabled(phase model.PhaseName) bool {
	var flag *bool
	switch phase {
	case model.PhaseIdentity:
		flag = p.Phases.Identity
	case model.PhasePresence:
		flag = p.Phases.ExternalPresence
	case model.PhaseMarketing:
		flag = p.Phases.MarketingConversion
	case model.PhaseCompetitor:
		flag = p.Phases.CompetitorAnalysis
	}
	return flag == nil || *flag
}

// Weight returns the configured weight for phase.
func (w PhaseWeights) Weight(phase model.PhaseName) float64 {
	switch phase {
	case model.PhaseIdentity:
		return w.Identity
	case model.PhasePresence:
		return w.ExternalPresence
	case model.PhaseMarketing:
		return w.MarketingConversion
	case model.PhaseCompetitor:
		return w.CompetitorAnalysis
	}
	return 0
}

// ModelFor returns the model table entry for phase, or the default entry.
func (c *Config) ModelFor(phase model.PhaseName) ModelConfig {
	if mc, ok := c.Models[string(phase)]; ok {
		return mc
	}
	return c.Models[DefaultModelKey]
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKET_INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.ModelsFile != "" {
		overrides, err := LoadPhaseModels(cfg.ModelsFile)
		if err != nil {
			return nil, err
		}
		cfg.Models = MergePhaseModels(cfg.Models, overrides)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("models_file", "")
	v.SetDefault("store.database_url", "market-intel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_confidence", 0.4)
	v.SetDefault("monitoring.cost_threshold_usd", 0)

	// Secrets default to empty so env-only values reach Unmarshal.
	for _, k := range []string{"anthropic.key", "gemini.key", "perplexity.key", "serper.key", "jina.key", "firecrawl.key", "google.key", "notion.token", "notion.report_db"} {
		v.SetDefault(k, "")
	}
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.country", "us")
	v.SetDefault("serper.num", 10)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.region", "us")
	v.SetDefault("google.language", "en")
	v.SetDefault("google.max_results", 5)
	v.SetDefault("notion.rate_limit", 3.0)

	for phase, mc := range defaultModels() {
		prefix := "models." + phase + "."
		v.SetDefault(prefix+"model", mc.Model)
		v.SetDefault(prefix+"fallback", mc.Fallback)
		v.SetDefault(prefix+"temperature", mc.Temperature)
		v.SetDefault(prefix+"max_tokens", mc.MaxTokens)
		v.SetDefault(prefix+"requires_json", mc.RequiresJSON)
		v.SetDefault(prefix+"timeout_secs", mc.TimeoutSecs)
	}

	v.SetDefault("retry.retries", 2)
	v.SetDefault("retry.delay_ms", 1000)

	pc := DefaultPipeline()
	v.SetDefault("pipeline.enabled", pc.Enabled)
	v.SetDefault("pipeline.fetch_page", pc.FetchPage)
	v.SetDefault("pipeline.render", pc.Render)
	v.SetDefault("pipeline.max_content_chars", pc.MaxContentChars)
	v.SetDefault("pipeline.pacing.enabled", pc.Pacing.Enabled)
	v.SetDefault("pipeline.pacing.min_delay_ms", pc.Pacing.MinDelayMs)
	v.SetDefault("pipeline.pacing.max_delay_ms", pc.Pacing.MaxDelayMs)

	sc := DefaultScoring()
	v.SetDefault("scoring.weights.identity", sc.Weights.Identity)
	v.SetDefault("scoring.weights.external_presence", sc.Weights.ExternalPresence)
	v.SetDefault("scoring.weights.marketing_conversion", sc.Weights.MarketingConversion)
	v.SetDefault("scoring.weights.competitor_analysis", sc.Weights.CompetitorAnalysis)
	v.SetDefault("scoring.low_confidence_threshold", sc.LowConfidenceThreshold)
	v.SetDefault("scoring.name_weight", sc.NameWeight)
	v.SetDefault("scoring.proof_asset_bonus", sc.ProofAssetBonus)
	v.SetDefault("scoring.tracking_bonus", sc.TrackingBonus)
	v.SetDefault("scoring.match_bonus", sc.MatchBonus)
	v.SetDefault("scoring.estimation_discount", sc.EstimationDiscount)
	v.SetDefault("scoring.competitor.frequency", sc.Competitor.Frequency)
	v.SetDefault("scoring.competitor.inverse_rank", sc.Competitor.InverseRank)
	v.SetDefault("scoring.competitor.coverage", sc.Competitor.Coverage)
	v.SetDefault("scoring.competitor.snippet", sc.Competitor.Snippet)
	v.SetDefault("scoring.competitor_top_n", sc.CompetitorTopN)

	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.serper.per_query", 0.001)
	v.SetDefault("pricing.jina.per_query", 0.0005)
}

// DefaultPipeline returns the orchestrator defaults.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		Enabled:         true,
		FetchPage:       true,
		MaxContentChars: 12000,
		Pacing:          PacingConfig{Enabled: true, MinDelayMs: 1500, MaxDelayMs: 4000},
	}
}

// DefaultScoring returns the default confidence coefficients.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Weights: PhaseWeights{
			Identity:            0.35,
			ExternalPresence:    0.20,
			MarketingConversion: 0.25,
			CompetitorAnalysis:  0.20,
		},
		LowConfidenceThreshold: 0.5,
		NameWeight:             1.5,
		ProofAssetBonus:        0.7,
		TrackingBonus:          0.8,
		MatchBonus:             0.2,
		EstimationDiscount:     0.5,
		Competitor: CompetitorWeights{
			Frequency:   0.35,
			InverseRank: 0.30,
			Coverage:    0.20,
			Snippet:     0.15,
		},
		CompetitorTopN: 3,
	}
}

func defaultModels() map[string]ModelConfig {
	return map[string]ModelConfig{
		DefaultModelKey: {
			Model: "claude-haiku-4-5", Fallback: "gemini-2.5-flash",
			Temperature: 0.2, MaxTokens: 4096, RequiresJSON: true, TimeoutSecs: 90,
		},
		string(model.PhaseIdentity): {
			Model: "claude-haiku-4-5", Fallback: "gemini-2.5-flash",
			Temperature: 0.1, MaxTokens: 2048, RequiresJSON: true, TimeoutSecs: 60,
		},
		string(model.PhasePresence): {
			Model: "claude-haiku-4-5", Fallback: "gemini-2.5-flash",
			Temperature: 0.3, MaxTokens: 2048, RequiresJSON: true, TimeoutSecs: 60,
		},
		string(model.PhaseMarketing): {
			Model: "claude-haiku-4-5", Fallback: "gemini-2.5-flash",
			Temperature: 0.2, MaxTokens: 3072, RequiresJSON: true, TimeoutSecs: 60,
		},
		string(model.PhaseCompetitor): {
			Model: "claude-sonnet-4-5", Fallback: "gemini-2.5-pro",
			Temperature: 0.3, MaxTokens: 3072, RequiresJSON: true, TimeoutSecs: 90,
		},
		string(model.PhaseConsolidation): {
			Model: "claude-sonnet-4-5", Fallback: "gemini-2.5-pro",
			Temperature: 0.4, MaxTokens: 6000, RequiresJSON: false, TimeoutSecs: 120,
		},
	}
}

// Validate reports inconsistent settings. mode names the command being run
// ("analyze", "batch", "serve", "mcp", "runs") and adds its own checks.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "analyze", "mcp", "runs":
	case "batch":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
			problems = append(problems, "batch.concurrency must be between 1 and 50")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	w := c.Scoring.Weights
	ws := []float64{w.Identity, w.ExternalPresence, w.MarketingConversion, w.CompetitorAnalysis}
	var sum float64
	for _, x := range ws {
		if x < 0 {
			problems = append(problems, "scoring.weights must not be negative")
			break
		}
		sum += x
	}
	if sum <= 0 {
		problems = append(problems, "scoring.weights must not all be zero")
	}

	cw := c.Scoring.Competitor
	if cw.Frequency < 0 || cw.InverseRank < 0 || cw.Coverage < 0 || cw.Snippet < 0 {
		problems = append(problems, "scoring.competitor weights must not be negative")
	}

	p := c.Pipeline.Pacing
	if p.MinDelayMs < 0 || p.MaxDelayMs < 0 {
		problems = append(problems, "pipeline.pacing delays must not be negative")
	}
	if p.MinDelayMs > p.MaxDelayMs {
		problems = append(problems, "pipeline.pacing.min_delay_ms exceeds max_delay_ms")
	}

	if t := c.Scoring.LowConfidenceThreshold; t < 0 || t > 1 {
		problems = append(problems, "scoring.low_confidence_threshold must be between 0 and 1")
	}

	if c.Retry.Retries < 0 || c.Retry.DelayMs < 0 {
		problems = append(problems, "retry settings must not be negative")
	}

	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == DefaultModelKey {
			continue
		}
		if ph := model.PhaseName(name); !ph.Valid() && ph != model.PhaseConsolidation {
			problems = append(problems, "models: unknown phase "+name)
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
