package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/cost"
	"github.com/sells-group/market-intel/internal/llm"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/pipeline"
	"github.com/sells-group/market-intel/internal/scrape"
	"github.com/sells-group/market-intel/internal/search"
	"github.com/sells-group/market-intel/internal/store"
	anthropicpkg "github.com/sells-group/market-intel/pkg/anthropic"
	"github.com/sells-group/market-intel/pkg/gemini"
	"github.com/sells-group/market-intel/pkg/google"
	"github.com/sells-group/market-intel/pkg/firecrawl"
	"github.com/sells-group/market-intel/pkg/jina"
	"github.com/sells-group/market-intel/pkg/notion"
	"github.com/sells-group/market-intel/pkg/perplexity"
	"github.com/sells-group/market-intel/pkg/serper"
)

// searchRPS throttles web search across concurrent runs.
const searchRPS = 5

// pipelineEnv holds the store, the model client and the orchestrator
// shared by the analyze/batch/serve/mcp commands.
type pipelineEnv struct {
	Store    store.Store
	LLM      *llm.Client
	Pipeline *pipeline.Orchestrator
	Notion   notion.Client // nil when notion is not configured
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, opens the store, builds every
// collaborator and the Orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := initModelClient(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithStore(st),
		pipeline.WithSearcher(initSearcher(cfg)),
		pipeline.WithFetcher(initFetcher(cfg)),
	}
	if cfg.Google.Key != "" {
		opts = append(opts, pipeline.WithPanel(search.NewPlacesPanel(
			google.NewClient(cfg.Google.Key,
				google.WithBaseURL(cfg.Google.BaseURL),
				google.WithRegion(cfg.Google.Region),
				google.WithLanguage(cfg.Google.Language),
				google.WithMaxResults(cfg.Google.MaxResults),
			),
		)))
		zap.L().Info("google places panel enabled")
	} else {
		zap.L().Debug("MARKET_INTEL_GOOGLE_KEY not set, knowledge panel limited to search results")
	}

	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
	}

	return &pipelineEnv{
		Store:    st,
		LLM:      client,
		Pipeline: pipeline.New(cfg, client, opts...),
		Notion:   notionClient,
	}, nil
}

// initModelClient builds the Model Client over every provider with a key.
// A client with no providers is still returned; runs then abort at the
// readiness check.
func initModelClient(ctx context.Context, c *config.Config) (*llm.Client, error) {
	var providers []llm.Provider

	if c.Anthropic.Key != "" {
		var aopts []anthropicpkg.Option
		if c.Anthropic.BaseURL != "" {
			aopts = append(aopts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		providers = append(providers, llm.NewAnthropicProvider(anthropicpkg.NewClient(c.Anthropic.Key, aopts...)))
	}

	if c.Gemini.Key != "" {
		var gopts []gemini.Option
		if c.Gemini.BaseURL != "" {
			gopts = append(gopts, gemini.WithBaseURL(c.Gemini.BaseURL))
		}
		gc, err := gemini.NewClient(ctx, c.Gemini.Key, gopts...)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini client")
		}
		providers = append(providers, llm.NewGeminiProvider(gc))
	}

	if c.Perplexity.Key != "" {
		providers = append(providers, llm.NewPerplexityProvider(perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)))
	}

	if len(providers) == 0 {
		zap.L().Warn("no model provider configured; runs will abort")
	}

	opts := []llm.ClientOption{
		llm.WithRetry(c.Retry.Retries, time.Duration(c.Retry.DelayMs)*time.Millisecond),
		llm.WithCalculator(cost.NewCalculator(costRates(c.Pricing))),
		llm.WithDefaults(phaseConfig(c.Models[config.DefaultModelKey])),
	}
	for _, phase := range append(append([]model.PhaseName{}, model.Phases...), model.PhaseConsolidation) {
		opts = append(opts, llm.WithPhase(phase, phaseConfig(c.ModelFor(phase))))
	}
	return llm.NewClient(providers, opts...), nil
}

func phaseConfig(mc config.ModelConfig) llm.PhaseConfig {
	return llm.PhaseConfig{
		Model:        mc.Model,
		Fallback:     mc.Fallback,
		Temperature:  mc.Temperature,
		MaxTokens:    mc.MaxTokens,
		RequiresJSON: mc.RequiresJSON,
		Timeout:      time.Duration(mc.TimeoutSecs) * time.Second,
	}
}

// costRates overlays configured prices onto the defaults.
func costRates(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, mp := range p.Models {
		rates.Models[name] = cost.ModelRate{
			Input:         mp.Input,
			Output:        mp.Output,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	if p.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerRequest = p.Perplexity.PerQuery
	}
	if p.Serper.PerQuery > 0 {
		rates.Search.SerperPerQuery = p.Serper.PerQuery
	}
	if p.Jina.PerQuery > 0 {
		rates.Search.JinaPerQuery = p.Jina.PerQuery
	}
	return rates
}

// initSearcher chains Serper then Jina search behind a shared rate limit.
// With no search credentials it degrades to search.Noop.
func initSearcher(c *config.Config) search.Searcher {
	var chain search.Chain
	if c.Serper.Key != "" {
		chain = append(chain, search.NewSerper(serper.NewClient(c.Serper.Key, serper.WithBaseURL(c.Serper.BaseURL)), c.Serper.Num, c.Serper.Country))
	}
	if c.Jina.Key != "" {
		chain = append(chain, search.NewJina(initJina(c), c.Serper.Country))
	}
	if len(chain) == 0 {
		zap.L().Warn("no search provider configured; presence and competitor phases will estimate")
		return search.Noop{}
	}
	return search.NewLimited(chain, searchRPS, searchRPS)
}

// initFetcher builds the page fetch chain: local HTTP first, then Jina
// Reader and Firecrawl when keyed, then headless Chrome when rendering is
// enabled.
func initFetcher(c *config.Config) *scrape.Chain {
	scrapers := []scrape.Scraper{scrape.NewLocalScraper()}
	if c.Jina.Key != "" {
		scrapers = append(scrapers, scrape.NewJinaAdapter(initJina(c)))
	}
	if c.Firecrawl.Key != "" {
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(
			firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL)),
		))
	}
	if c.Pipeline.Render {
		scrapers = append(scrapers, scrape.NewHeadlessScraper(45*time.Second, 2*time.Second))
	}
	return scrape.NewChain(scrapers...)
}

func initJina(c *config.Config) jina.Client {
	opts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	return jina.NewClient(c.Jina.Key, opts...)
}
