package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/llm"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/scrape"
	"github.com/sells-group/market-intel/internal/search"
	"github.com/sells-group/market-intel/internal/store"
)

// State is a step of the run state machine.
type State string

const (
	StateIdle        State = "idle"
	StateIdentity    State = "identity"
	StatePresence    State = "external_presence"
	StateMarketing   State = "marketing_conversion"
	StateCompetitor  State = "competitor_analysis"
	StateConsolidate State = "consolidate"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

// ErrUnusableInput is returned when the input names no URL, description or
// content.
var ErrUnusableInput = errors.New("pipeline: input has no url, description or content")

// RunError is the terminal error of an aborted run. It carries the last
// checkpoint written before the abort.
type RunError struct {
	RunID      string
	State      State
	Checkpoint *model.Checkpoint
	Err        error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("pipeline: run %s aborted in %s: %v", e.RunID, e.State, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// PageFetcher fetches the business page for URL-only input. *scrape.Chain
// satisfies it.
type PageFetcher interface {
	Scrape(ctx context.Context, url string) (*scrape.Page, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists runs, checkpoints and artifacts to st.
func WithStore(st store.Store) Option {
	return func(o *Orchestrator) { o.store = st }
}

// WithSearcher sets the web-search collaborator.
func WithSearcher(s search.Searcher) Option {
	return func(o *Orchestrator) { o.searcher = s }
}

// WithPanel sets the knowledge-panel lookup used when search has none.
func WithPanel(p search.PanelLookup) Option {
	return func(o *Orchestrator) { o.panel = p }
}

// WithFetcher sets the page fetcher for URL-only input.
func WithFetcher(f PageFetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

// WithPacer replaces the inter-phase pacer.
func WithPacer(p *Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithAgentOptions passes opts to every phase agent.
func WithAgentOptions(opts ...AgentOption) Option {
	return func(o *Orchestrator) { o.agentOpts = append(o.agentOpts, opts...) }
}

// WithIDs sets the run and report id generator.
func WithIDs(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// OnTransition registers fn to observe every state change.
func OnTransition(fn func(from, to State)) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, fn) }
}

// Orchestrator drives the four phases in order and consolidates the
// result. Runs on one Orchestrator share no state and may run concurrently.
type Orchestrator struct {
	cfg     config.PipelineConfig
	scoring config.ScoringConfig
	llm     ModelClient

	store    store.Store
	searcher search.Searcher
	panel    search.PanelLookup
	fetcher  PageFetcher
	pacer    *Pacer

	agentOpts []AgentOption
	newID     func() string
	hooks     []func(from, to State)

	identity     *IdentityAgent
	presence     *PresenceAgent
	marketing    *MarketingAgent
	competitor   *CompetitorAgent
	consolidator *Consolidator
}

// New creates an Orchestrator from cfg. client may be nil, in which case
// every run aborts at the readiness check.
func New(cfg *config.Config, client ModelClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.Pipeline,
		scoring: cfg.Scoring,
		llm:     client,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pacer == nil {
		o.pacer = NewPacer(o.cfg.Pacing)
	}

	agentOpts := append([]AgentOption{WithMaxContent(o.cfg.MaxContentChars)}, o.agentOpts...)
	o.identity = NewIdentityAgent(client, o.scoring, agentOpts...)
	o.presence = NewPresenceAgent(client, o.searcher, o.panel, o.scoring, agentOpts...)
	o.marketing = NewMarketingAgent(client, o.scoring, agentOpts...)
	o.competitor = NewCompetitorAgent(client, o.searcher, o.scoring, agentOpts...)
	o.consolidator = NewConsolidator(client, o.scoring)
	o.consolidator.newID = o.newID
	o.consolidator.now = o.identity.now
	return o
}

// run is the state of one execution.
type run struct {
	id         string
	state      State
	checkpoint *model.Checkpoint
	out        model.PhaseOutputs
	log        *zap.Logger
	stored     bool
}

// Execute runs the pipeline and returns the report. It never panics and
// never returns an error: an aborted run is logged with its last checkpoint
// and yields nil, as does a disabled pipeline.
func (o *Orchestrator) Execute(ctx context.Context, in model.Input) *model.Report {
	rep, err := o.Run(ctx, in)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var re *RunError
		if errors.As(err, &re) {
			fields = append(fields, zap.String("run_id", re.RunID), zap.String("state", string(re.State)))
			if re.Checkpoint != nil {
				fields = append(fields,
					zap.String("checkpoint_phase", string(re.Checkpoint.Phase)),
					zap.Time("checkpoint_at", re.Checkpoint.Timestamp),
				)
			}
		}
		zap.L().Error("pipeline: run aborted", fields...)
		return nil
	}
	return rep
}

// Run runs the pipeline. A disabled pipeline returns (nil, nil). A failed
// precondition, a cancelled context between phases or a panic returns a
// *RunError.
func (o *Orchestrator) Run(ctx context.Context, in model.Input) (rep *model.Report, err error) {
	if !o.cfg.Enabled {
		zap.L().Debug("pipeline: disabled, skipping run")
		return nil, nil
	}

	r := &run{id: o.newID(), state: StateIdle}
	r.log = zap.L().With(zap.String("run_id", r.id), zap.String("target", in.Target()))

	defer func() {
		if p := recover(); p != nil {
			rep = nil
			err = o.abort(ctx, r, eris.Errorf("panic: %v", p))
		}
	}()

	if perr := o.preflight(in); perr != nil {
		return nil, o.abort(ctx, r, perr)
	}

	o.createRun(ctx, r, in)
	r.log.Info("pipeline: starting run")
	start := time.Now()

	in = o.fetchPage(ctx, r, in)

	steps := []struct {
		phase model.PhaseName
		state State
		exec  func(context.Context, model.Input, *run) model.Artifact
	}{
		{model.PhaseIdentity, StateIdentity, o.runIdentity},
		{model.PhasePresence, StatePresence, o.runPresence},
		{model.PhaseMarketing, StateMarketing, o.runMarketing},
		{model.PhaseCompetitor, StateCompetitor, o.runCompetitor},
	}

	executed := false
	for _, s := range steps {
		if cerr := ctx.Err(); cerr != nil {
			return nil, o.abort(ctx, r, eris.Wrap(cerr, "pipeline: cancelled between phases"))
		}
		o.transition(r, s.state)

		if !o.cfg.PhaseEnabled(s.phase) {
			r.log.Info("pipeline: phase skipped", zap.String("phase", string(s.phase)))
			o.checkpoint(ctx, r, s.phase, nil)
			continue
		}

		if executed {
			if werr := o.pacer.Wait(ctx); werr != nil {
				return nil, o.abort(ctx, r, eris.Wrap(werr, "pipeline: cancelled while pacing"))
			}
		}
		executed = true

		phaseStart := time.Now()
		art := s.exec(ctx, in, r)
		meta := art.Meta()
		r.log.Info("pipeline: phase complete",
			zap.String("phase", string(s.phase)),
			zap.String("status", string(meta.ExtractionStatus)),
			zap.String("mode", string(meta.Mode)),
			zap.Float64("confidence", meta.OverallConfidence),
			zap.Int64("duration_ms", time.Since(phaseStart).Milliseconds()),
		)
		o.checkpoint(ctx, r, s.phase, art)
	}

	o.transition(r, StateConsolidate)
	rep = o.consolidator.Consolidate(ctx, r.out)
	rep.RunID = r.id
	rep.Target = in.Target()
	o.transition(r, StateDone)

	o.finishRun(ctx, r, in, rep)
	r.log.Info("pipeline: run complete",
		zap.String("status", string(rep.Status)),
		zap.Float64("overall_confidence", rep.OverallConfidence),
		zap.Int("phases_completed", len(rep.DataQuality.PhasesCompleted)),
		zap.Int64("tokens", rep.Usage.Total()),
		zap.Float64("cost_usd", rep.Usage.Cost),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return rep, nil
}

// preflight checks the entry preconditions once, before any phase starts.
func (o *Orchestrator) preflight(in model.Input) error {
	if !in.Usable() {
		return ErrUnusableInput
	}
	if o.llm == nil {
		return eris.Wrap(llm.ErrNoProvider, "pipeline: no model client")
	}
	phases := append([]model.PhaseName{}, model.Phases...)
	phases = append(phases, model.PhaseConsolidation)
	for _, phase := range phases {
		if phase != model.PhaseConsolidation && !o.cfg.PhaseEnabled(phase) {
			continue
		}
		if err := o.llm.Ready(phase); err != nil {
			return eris.Wrap(err, "pipeline: model not ready")
		}
	}
	return nil
}

func (o *Orchestrator) runIdentity(ctx context.Context, in model.Input, r *run) model.Artifact {
	r.out.Identity = o.identity.Extract(ctx, IdentityInput{
		URL:         in.URL,
		HTML:        in.HTML,
		Text:        in.TextContent,
		Description: in.Description,
	})
	return r.out.Identity
}

func (o *Orchestrator) runPresence(ctx context.Context, in model.Input, r *run) model.Artifact {
	r.out.Presence = o.presence.Analyze(ctx, PresenceInput{
		Identity:    r.out.Identity,
		URL:         in.URL,
		Description: in.Description,
		Prefetched:  in.PresenceResults,
	})
	return r.out.Presence
}

func (o *Orchestrator) runMarketing(ctx context.Context, in model.Input, r *run) model.Artifact {
	r.out.Marketing = o.marketing.Analyze(ctx, MarketingInput{
		Identity:    r.out.Identity,
		URL:         in.URL,
		HTML:        in.HTML,
		Text:        in.TextContent,
		Description: in.Description,
	})
	return r.out.Marketing
}

func (o *Orchestrator) runCompetitor(ctx context.Context, in model.Input, r *run) model.Artifact {
	r.out.Competitor = o.competitor.Analyze(ctx, CompetitorInput{
		Identity:    r.out.Identity,
		URL:         in.URL,
		Description: in.Description,
		Prefetched:  in.SearchResults,
		Keywords:    in.Keywords,
	})
	return r.out.Competitor
}

// fetchPage fills in page content for URL-only input. Any failure leaves
// the input as it was.
func (o *Orchestrator) fetchPage(ctx context.Context, r *run, in model.Input) model.Input {
	if !o.cfg.FetchPage || o.fetcher == nil || strings.TrimSpace(in.URL) == "" || in.HasContent() {
		return in
	}
	page, err := o.fetcher.Scrape(ctx, in.URL)
	if err != nil {
		r.log.Warn("pipeline: page fetch failed, continuing without content", zap.Error(err))
		return in
	}
	if page == nil {
		return in
	}
	in.HTML = page.HTML
	in.TextContent = page.Text
	r.log.Debug("pipeline: page fetched",
		zap.String("source", page.Source),
		zap.Int("html_bytes", len(page.HTML)),
		zap.Int("text_bytes", len(page.Text)),
	)
	return in
}

func (o *Orchestrator) transition(r *run, to State) {
	from := r.state
	r.state = to
	for _, fn := range o.hooks {
		fn(from, to)
	}
}

// checkpoint overwrites the run's checkpoint slot with phase and persists
// it. A nil artifact marks a skipped phase.
func (o *Orchestrator) checkpoint(ctx context.Context, r *run, phase model.PhaseName, art model.Artifact) {
	data := json.RawMessage("null")
	if art != nil {
		if b, err := json.Marshal(art); err == nil {
			data = b
		} else {
			r.log.Warn("pipeline: marshal artifact", zap.String("phase", string(phase)), zap.Error(err))
		}
	}
	now := time.Now().UTC()
	r.checkpoint = &model.Checkpoint{Phase: phase, Data: data, Timestamp: now}

	if o.store == nil {
		return
	}
	if err := o.store.SaveCheckpoint(ctx, r.id, *r.checkpoint); err != nil {
		r.log.Warn("pipeline: save checkpoint", zap.String("phase", string(phase)), zap.Error(err))
	}
	rec := model.PhaseRecord{RunID: r.id, Phase: phase, Skipped: art == nil, Data: data, CreatedAt: now}
	if err := o.store.SavePhaseArtifact(ctx, rec); err != nil {
		r.log.Warn("pipeline: save phase artifact", zap.String("phase", string(phase)), zap.Error(err))
	}
}

// createRun records the run. The stored id replaces the generated one.
func (o *Orchestrator) createRun(ctx context.Context, r *run, in model.Input) {
	if o.store == nil {
		return
	}
	stored, err := o.store.CreateRun(ctx, in)
	if err != nil {
		r.log.Warn("pipeline: create run", zap.Error(err))
		return
	}
	r.stored = true
	if stored != nil && stored.ID != "" && stored.ID != r.id {
		r.id = stored.ID
		r.log = r.log.With(zap.String("stored_run_id", stored.ID))
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, r *run, in model.Input, rep *model.Report) {
	if o.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := o.store.SaveReport(ctx, r.id, rep); err != nil {
		r.log.Warn("pipeline: save report", zap.Error(err))
	}
	if err := o.store.Write(ctx, ReportKey(in.Target()), rep); err != nil {
		r.log.Warn("pipeline: write latest report", zap.Error(err))
	}
	status, msg := model.RunStatusComplete, ""
	if rep.Status == model.ReportFailed {
		status, msg = model.RunStatusFailed, "report synthesis failed"
	}
	if err := o.store.UpdateRunStatus(ctx, r.id, status, msg); err != nil {
		r.log.Warn("pipeline: update run status", zap.Error(err))
	}
}

// abort moves the run to aborted and builds its terminal error.
func (o *Orchestrator) abort(ctx context.Context, r *run, cause error) error {
	at := r.state
	o.transition(r, StateAborted)
	if o.store != nil && r.stored {
		if err := o.store.UpdateRunStatus(context.WithoutCancel(ctx), r.id, model.RunStatusAborted, cause.Error()); err != nil {
			r.log.Warn("pipeline: update run status", zap.Error(err))
		}
	}
	return &RunError{RunID: r.id, State: at, Checkpoint: r.checkpoint, Err: cause}
}

// ReportKey is the store name under which the latest report for target is
// written.
func ReportKey(target string) string {
	return "report:" + strings.ToLower(strings.TrimSpace(target))
}
