// Package cost estimates spend for model and search calls.
package cost

import (
	"strings"
)

// Rates holds pricing configuration for every provider the pipeline calls.
type Rates struct {
	Models     map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	Search     SearchRate           `yaml:"search" mapstructure:"search"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityRate holds the per-request fee Perplexity charges on top of tokens.
type PerplexityRate struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// SearchRate holds per-query search pricing.
type SearchRate struct {
	SerperPerQuery float64 `yaml:"serper_per_query" mapstructure:"serper_per_query"`
	JinaPerQuery   float64 `yaml:"jina_per_query" mapstructure:"jina_per_query"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// rate resolves model by exact name, then by the longest configured prefix
// so that dated model snapshots share the family price.
func (c *Calculator) rate(model string) (ModelRate, bool) {
	if r, ok := c.rates.Models[model]; ok {
		return r, true
	}
	var best string
	for name := range c.rates.Models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates.Models[best], true
}

// Model computes the token cost of one completion. Unknown models cost 0.
func (c *Calculator) Model(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rate(model)
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// PerplexityRequest returns the flat fee per Perplexity request.
func (c *Calculator) PerplexityRequest() float64 {
	return c.rates.Perplexity.PerRequest
}

// SearchQueries returns the cost of n queries against provider ("serper" or "jina").
func (c *Calculator) SearchQueries(provider string, n int) float64 {
	switch provider {
	case "serper":
		return float64(n) * c.rates.Search.SerperPerQuery
	case "jina":
		return float64(n) * c.rates.Search.JinaPerQuery
	}
	return 0
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5":  {Input: 1.00, Output: 5.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
			"claude-sonnet-4-5": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
			"claude-opus-4":     {Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
			"gemini-2.5-flash":  {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":    {Input: 1.25, Output: 10.00},
			"sonar":             {Input: 1.00, Output: 1.00},
			"sonar-pro":         {Input: 3.00, Output: 15.00},
		},
		Perplexity: PerplexityRate{PerRequest: 0.005},
		Search:     SearchRate{SerperPerQuery: 0.001, JinaPerQuery: 0.0005},
	}
}
