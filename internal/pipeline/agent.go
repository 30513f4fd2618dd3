// Package pipeline runs the four market-intelligence phases in order and
// consolidates their artifacts into one report.
//
// Every phase agent returns a well-formed artifact. Failures inside a phase
// are converted to an empty artifact marked failed; they never reach the
// Orchestrator as errors.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/llm"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/signals"
)

const (
	// segmentChars is the size of one content excerpt in a prompt.
	segmentChars = 3000
	// defaultMaxContent bounds the excerpt text placed in one prompt.
	defaultMaxContent = 12000
	// structuredNameConfidence is used when only structured data named the business.
	structuredNameConfidence = 0.6
	// domainNameConfidence is used when the name was derived from the domain.
	domainNameConfidence = 0.3
	// candidateConfidence is the confidence of a deterministic candidate kept
	// without model corroboration.
	candidateConfidence = 0.6
)

// ModelClient is the completion collaborator used by agents and the
// consolidator. *llm.Client satisfies it.
type ModelClient interface {
	Complete(ctx context.Context, phase model.PhaseName, user, system string, opts llm.Options) (*llm.Result, error)
	Ready(phase model.PhaseName) error
}

// PhaseError is an extraction failure scoped to one phase. It carries what
// was known when the phase failed so the failed artifact keeps it.
type PhaseError struct {
	Phase      model.PhaseName
	Mode       model.Mode
	DataSource model.DataSource
	Err        error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// agent holds what every phase agent shares.
type agent struct {
	llm        ModelClient
	scoring    config.ScoringConfig
	similar    SimilarityFunc
	maxContent int
	now        func() time.Time
}

// AgentOption configures a phase agent.
type AgentOption func(*agent)

// WithSimilarity replaces the corroboration check.
func WithSimilarity(fn SimilarityFunc) AgentOption {
	return func(a *agent) {
		if fn != nil {
			a.similar = fn
		}
	}
}

// WithClock sets the clock used to stamp artifacts.
func WithClock(now func() time.Time) AgentOption {
	return func(a *agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMaxContent bounds the page text sent to the model.
func WithMaxContent(n int) AgentOption {
	return func(a *agent) {
		if n > 0 {
			a.maxContent = n
		}
	}
}

func newAgent(client ModelClient, scoring config.ScoringConfig, opts []AgentOption) agent {
	a := agent{
		llm:        client,
		scoring:    scoring,
		similar:    ContainsSimilarity,
		maxContent: defaultMaxContent,
		now:        time.Now,
	}
	for _, o := range opts {
		o(&a)
	}
	return a
}

// meta returns a fresh envelope for phase.
func (a *agent) meta(phase model.PhaseName) model.ArtifactMeta {
	return model.NewMeta(phase, a.now())
}

// failed converts err into the envelope of a failed artifact and logs it.
func (a *agent) failed(phase model.PhaseName, err error) model.ArtifactMeta {
	m := a.meta(phase)
	m.ExtractionStatus = model.ExtractionFailed
	m.ExtractionError = err.Error()

	var pe *PhaseError
	if errors.As(err, &pe) {
		m.Mode = pe.Mode
		m.DataSource = pe.DataSource
		m.ExtractionError = pe.Err.Error()
	}
	zap.L().Warn("pipeline: phase extraction failed",
		zap.String("phase", string(phase)),
		zap.String("mode", string(m.Mode)),
		zap.Error(err),
	)
	return m
}

// ask sends one JSON-mode prompt and decodes the reply into out. Only a
// transport failure is returned as an error; a reply that cannot be decoded
// is reported through Result.ParseError and leaves out untouched.
func (a *agent) ask(ctx context.Context, phase model.PhaseName, user, system string, out any) (*llm.Result, error) {
	if a.llm == nil {
		return nil, llm.ErrNoProvider
	}
	res, err := a.llm.Complete(ctx, phase, user, system, llm.Options{RequiresJSON: llm.Bool(true)})
	if err != nil {
		return nil, err
	}
	if derr := res.Decode(out); derr != nil && res.ParseError == "" {
		res.ParseError = derr.Error()
	}
	return res, nil
}

// stamp records the model call on m. A parse failure is kept as an
// annotation; the phase still completes with whatever was recovered.
func stamp(m *model.ArtifactMeta, res *llm.Result) {
	if res == nil {
		return
	}
	m.Model = res.Model
	m.Usage = res.Usage
	if res.ParseError != "" {
		m.ExtractionError = "parse: " + res.ParseError
	}
}

// discount scales v by the estimation discount when mode is estimation.
func (a *agent) discount(mode model.Mode, v float64) float64 {
	if mode != model.ModeEstimation {
		return model.Clamp01(v)
	}
	d := a.scoring.EstimationDiscount
	if d <= 0 || d > 1 {
		d = 1
	}
	return model.Clamp01(v * d)
}

// bonus adds the match bonus to v, capped at 1.
func (a *agent) bonus(v float64) float64 {
	return Boost(v, a.scoring.MatchBonus)
}

// selectMode picks the extraction path from what the input carries.
func selectMode(html, text, description string) model.Mode {
	switch {
	case strings.TrimSpace(html) != "" || strings.TrimSpace(text) != "":
		return model.ModeRich
	case strings.TrimSpace(description) != "":
		return model.ModeEstimation
	}
	return model.ModeNone
}

// sourceFor maps a mode to the data source of a page-backed phase.
func sourceFor(mode model.Mode) model.DataSource {
	switch mode {
	case model.ModeRich:
		return model.SourceContent
	case model.ModeEstimation:
		return model.SourceDescription
	}
	return model.SourceNone
}

// pageText returns text, or the text of rawHTML when text is empty.
func pageText(rawHTML, text string) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	if rawHTML == "" {
		return ""
	}
	return signals.HTMLToText(rawHTML)
}

// excerpts renders at most maxChars of text as numbered segments.
func excerpts(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxContent
	}
	var b strings.Builder
	used := 0
	for i, seg := range signals.Segment(text, segmentChars) {
		if used+len(seg) > maxChars {
			break
		}
		fmt.Fprintf(&b, "[Segment %d]\n%s\n\n", i+1, seg)
		used += len(seg)
	}
	return strings.TrimSpace(b.String())
}

// mean returns the arithmetic mean of vs, or 0.
func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// identityOrEmpty keeps downstream phases free of nil checks.
func identityOrEmpty(a *model.IdentityArtifact, now time.Time) *model.IdentityArtifact {
	if a != nil {
		return a
	}
	return model.EmptyIdentity(model.NewMeta(model.PhaseIdentity, now))
}

// cleanStrings trims, drops empties and dedupes case-insensitively.
func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
