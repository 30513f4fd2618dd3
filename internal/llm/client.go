// Package llm routes phase prompts to model providers with per-phase model
// selection, linear-backoff retries and a single fallback attempt.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/cost"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/resilience"
)

const (
	defaultMaxTokens = 4096
	defaultTimeout   = 90 * time.Second
)

// ErrNoProvider is returned when no configured provider serves a model.
var ErrNoProvider = errors.New("llm: no provider for model")

// PhaseConfig selects the models and generation parameters for one phase.
type PhaseConfig struct {
	Model        string
	Fallback     string
	Temperature  float64
	MaxTokens    int64
	RequiresJSON bool
	Timeout      time.Duration
}

// Options override the phase defaults for a single call. Nil fields keep the
// phase value.
type Options struct {
	Temperature  *float64
	MaxTokens    int64
	RequiresJSON *bool
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Result is a successful completion.
type Result struct {
	Raw          string           `json:"raw"`
	Parsed       json.RawMessage  `json:"parsed,omitempty"`
	ParseError   string           `json:"parse_error,omitempty"`
	Model        string           `json:"model"`
	Provider     string           `json:"provider"`
	Usage        model.TokenUsage `json:"usage"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Fallback     bool             `json:"fallback"`
	Attempts     int              `json:"attempts"`
}

// Decode unmarshals the parsed JSON object into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Parsed) == 0 {
		if r != nil && r.ParseError != "" {
			return eris.New("llm: no parsed JSON: " + r.ParseError)
		}
		return eris.New("llm: no parsed JSON")
	}
	return eris.Wrap(json.Unmarshal(r.Parsed, v), "llm: decode parsed JSON")
}

// CompletionError reports that the primary model and the fallback (when one
// was configured) both failed.
type CompletionError struct {
	Phase       model.PhaseName
	Primary     string
	Fallback    string
	PrimaryErr  error
	FallbackErr error
}

func (e *CompletionError) Error() string {
	if e.Fallback == "" {
		return fmt.Sprintf("llm: %s failed on %s (no fallback): %v", e.Phase, e.Primary, e.PrimaryErr)
	}
	return fmt.Sprintf("llm: %s failed on %s: %v; fallback %s: %v",
		e.Phase, e.Primary, e.PrimaryErr, e.Fallback, e.FallbackErr)
}

func (e *CompletionError) Unwrap() []error {
	var errs []error
	if e.PrimaryErr != nil {
		errs = append(errs, e.PrimaryErr)
	}
	if e.FallbackErr != nil {
		errs = append(errs, e.FallbackErr)
	}
	return errs
}

// Client executes phase completions. It is safe for concurrent use.
type Client struct {
	providers []Provider
	phases    map[model.PhaseName]PhaseConfig
	defaults  PhaseConfig
	retries   int
	delay     time.Duration
	calc      *cost.Calculator
	usage     *Tracker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry sets the retry count for the primary model and the linear delay
// unit between attempts.
func WithRetry(retries int, delay time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
		if delay >= 0 {
			c.delay = delay
		}
	}
}

// WithPhase sets the configuration of one phase.
func WithPhase(phase model.PhaseName, pc PhaseConfig) ClientOption {
	return func(c *Client) { c.phases[phase] = pc }
}

// WithDefaults sets the configuration used by phases with no entry.
func WithDefaults(pc PhaseConfig) ClientOption {
	return func(c *Client) { c.defaults = pc }
}

// WithCalculator enables cost accounting.
func WithCalculator(calc *cost.Calculator) ClientOption {
	return func(c *Client) { c.calc = calc }
}

// WithTracker shares a usage tracker between clients.
func WithTracker(t *Tracker) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.usage = t
		}
	}
}

// NewClient creates a Client over the given providers. Nil providers are
// skipped so callers can pass optional clients directly.
func NewClient(providers []Provider, opts ...ClientOption) *Client {
	c := &Client{
		phases:  make(map[model.PhaseName]PhaseConfig),
		retries: 2,
		delay:   time.Second,
		usage:   NewTracker(),
	}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Usage returns the tracker holding this client's counters.
func (c *Client) Usage() *Tracker { return c.usage }

// HasProvider reports whether any provider is configured.
func (c *Client) HasProvider() bool { return len(c.providers) > 0 }

// Ready reports whether the primary or fallback model of phase can be routed.
func (c *Client) Ready(phase model.PhaseName) error {
	pc := c.phaseConfig(phase)
	if _, _, err := c.route(pc.Model); err == nil {
		return nil
	}
	if pc.Fallback != "" {
		if _, _, err := c.route(pc.Fallback); err == nil {
			return nil
		}
	}
	return eris.Wrapf(ErrNoProvider, "phase %s (model %q, fallback %q)", phase, pc.Model, pc.Fallback)
}

// PhaseConfig returns the effective configuration for phase.
func (c *Client) PhaseConfig(phase model.PhaseName) PhaseConfig {
	return c.phaseConfig(phase)
}

func (c *Client) phaseConfig(phase model.PhaseName) PhaseConfig {
	pc, ok := c.phases[phase]
	if !ok {
		pc = c.defaults
	}
	if pc.Model == "" {
		pc.Model = c.defaults.Model
	}
	if pc.Fallback == "" {
		pc.Fallback = c.defaults.Fallback
	}
	if pc.MaxTokens <= 0 {
		pc.MaxTokens = c.defaults.MaxTokens
	}
	if pc.MaxTokens <= 0 {
		pc.MaxTokens = defaultMaxTokens
	}
	if pc.Timeout <= 0 {
		pc.Timeout = c.defaults.Timeout
	}
	if pc.Timeout <= 0 {
		pc.Timeout = defaultTimeout
	}
	return pc
}

// route resolves a model name to a provider. An explicit "provider:model"
// prefix wins over prefix-based routing.
func (c *Client) route(name string) (Provider, string, error) {
	if name == "" {
		return nil, "", eris.Wrap(ErrNoProvider, "empty model name")
	}
	prefix, m := splitModel(name)
	for _, p := range c.providers {
		if prefix != "" {
			if p.Name() == prefix {
				return p, m, nil
			}
			continue
		}
		if p.Supports(m) {
			return p, m, nil
		}
	}
	return nil, "", eris.Wrapf(ErrNoProvider, "model %q", name)
}

// Complete sends one prompt for phase. The primary model gets 1+retries
// attempts with linear backoff; when they are exhausted the fallback model,
// if configured and distinct, gets exactly one attempt.
func (c *Client) Complete(ctx context.Context, phase model.PhaseName, user, system string, opts Options) (*Result, error) {
	pc := c.phaseConfig(phase)
	if opts.Temperature != nil {
		pc.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		pc.MaxTokens = opts.MaxTokens
	}
	if opts.RequiresJSON != nil {
		pc.RequiresJSON = *opts.RequiresJSON
	}

	log := zap.L().With(zap.String("phase", string(phase)), zap.String("model", pc.Model))

	primary := resilience.LinearRetryConfig(c.retries, c.delay)
	primary.OnRetry = func(attempt int, err error) {
		log.Debug("llm: retrying", zap.Int("attempt", attempt), zap.Error(err))
	}

	res, err := c.attempt(ctx, phase, pc.Model, pc, primary, user, system)
	if err == nil {
		return res, nil
	}
	primaryErr := err

	fallback := pc.Fallback
	if fallback == pc.Model || errors.Is(err, context.Canceled) {
		fallback = ""
	}
	if fallback == "" {
		log.Error("llm: completion failed", zap.Error(primaryErr))
		return nil, &CompletionError{Phase: phase, Primary: pc.Model, PrimaryErr: primaryErr}
	}

	log.Warn("llm: primary model exhausted, trying fallback",
		zap.String("fallback", fallback),
		zap.Int("attempts", primary.Attempts()),
		zap.Error(primaryErr),
	)

	res, err = c.attempt(ctx, phase, fallback, pc, resilience.LinearRetryConfig(0, 0), user, system)
	if err != nil {
		log.Error("llm: fallback failed", zap.String("fallback", fallback), zap.Error(err))
		return nil, &CompletionError{
			Phase:       phase,
			Primary:     pc.Model,
			Fallback:    fallback,
			PrimaryErr:  primaryErr,
			FallbackErr: err,
		}
	}
	res.Fallback = true
	return res, nil
}

func (c *Client) attempt(ctx context.Context, phase model.PhaseName, name string, pc PhaseConfig, rc resilience.RetryConfig, user, system string) (*Result, error) {
	provider, m, err := c.route(name)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	req := Request{
		Model:       m,
		System:      system,
		Prompt:      user,
		Temperature: Float(pc.Temperature),
		MaxTokens:   pc.MaxTokens,
		JSON:        pc.RequiresJSON,
	}

	attempts := 0
	resp, err := resilience.DoVal(ctx, rc, func(ctx context.Context) (*Response, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, pc.Timeout)
		defer cancel()

		resp, err := provider.Complete(callCtx, req)
		if err != nil {
			c.usage.RecordFailure(phase, name)
			return nil, eris.Wrapf(err, "llm: %s", name)
		}
		if resp == nil || strings.TrimSpace(resp.Text) == "" {
			c.usage.RecordFailure(phase, name)
			return nil, eris.Errorf("llm: empty completion from %s", name)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	usage := model.TokenUsage{PromptTokens: resp.InputTokens, CompletionTokens: resp.OutputTokens}
	if c.calc != nil {
		usage.Cost = c.calc.Model(m, resp.InputTokens, resp.OutputTokens, resp.CacheWriteTokens, resp.CacheReadTokens)
		if provider.Name() == "perplexity" {
			usage.Cost += c.calc.PerplexityRequest()
		}
	}
	c.usage.Record(phase, name, usage.PromptTokens, usage.CompletionTokens, usage.Cost)

	res := &Result{
		Raw:          resp.Text,
		Model:        m,
		Provider:     provider.Name(),
		Usage:        usage,
		FinishReason: resp.FinishReason,
		Attempts:     attempts,
	}
	if resp.Model != "" {
		res.Model = resp.Model
	}
	if pc.RequiresJSON {
		parseJSON(res)
	}
	return res, nil
}

// parseJSON fills Parsed from the first balanced object in Raw, or records
// why it could not.
func parseJSON(res *Result) {
	obj, ok := ExtractJSON(res.Raw)
	if !ok {
		res.ParseError = "no JSON object in completion"
		return
	}
	if !json.Valid([]byte(obj)) {
		res.ParseError = "malformed JSON object in completion"
		return
	}
	res.Parsed = json.RawMessage(obj)
}
