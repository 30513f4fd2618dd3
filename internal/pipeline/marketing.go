package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/signals"
)

// MarketingInput is what the marketing and conversion phase reads.
type MarketingInput struct {
	Identity    *model.IdentityArtifact
	URL         string
	HTML        string
	Text        string
	Description string
}

// MarketingAgent maps CTAs, tracking, engagement and the sales process.
type MarketingAgent struct {
	agent
}

// NewMarketingAgent creates a marketing agent.
func NewMarketingAgent(client ModelClient, scoring config.ScoringConfig, opts ...AgentOption) *MarketingAgent {
	return &MarketingAgent{agent: newAgent(client, scoring, opts)}
}

// Analyze runs the marketing phase. It always returns a well-formed artifact.
func (a *MarketingAgent) Analyze(ctx context.Context, in MarketingInput) *model.MarketingArtifact {
	art, err := a.analyze(ctx, in)
	if err != nil {
		return model.EmptyMarketing(a.failed(model.PhaseMarketing, err))
	}
	return art
}

type ctaResponse struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Target     string  `json:"target"`
	Placement  string  `json:"placement"`
	Confidence float64 `json:"confidence"`
}

type stepResponse struct {
	Step        string  `json:"step"`
	Probability float64 `json:"probability"`
}

type journeyResponse struct {
	EntryOffer  string   `json:"entry_offer"`
	CoreProduct string   `json:"core_product"`
	Upsells     []string `json:"upsells"`
	CrossSells  []string `json:"cross_sells"`
	Confidence  float64  `json:"confidence"`
}

type marketingResponse struct {
	CTAs                   []ctaResponse   `json:"ctas"`
	EngagementPath         []stepResponse  `json:"engagement_path"`
	SalesProcess           string          `json:"sales_process"`
	SalesProcessConfidence float64         `json:"sales_process_confidence"`
	ProductJourney         journeyResponse `json:"product_journey"`
}

func (a *MarketingAgent) analyze(ctx context.Context, in MarketingInput) (*model.MarketingArtifact, error) {
	meta := a.meta(model.PhaseMarketing)
	mode := selectMode(in.HTML, in.Text, in.Description)
	if mode == model.ModeNone {
		return model.EmptyMarketing(meta), nil
	}
	meta.Mode = mode
	meta.DataSource = sourceFor(mode)

	id := identityOrEmpty(in.Identity, a.now())
	var sig signals.Signals
	var text string
	system := marketingEstimateSystemPrompt
	if mode == model.ModeRich {
		text = pageText(in.HTML, in.Text)
		sig = signals.Scan(in.HTML, text, in.URL)
		system = marketingSystemPrompt
	}

	var resp marketingResponse
	res, err := a.ask(ctx, model.PhaseMarketing, a.prompt(in, id, sig, text), system, &resp)
	if err != nil {
		return nil, &PhaseError{Phase: model.PhaseMarketing, Mode: mode, DataSource: meta.DataSource, Err: err}
	}

	art := model.EmptyMarketing(meta)
	stamp(&art.ArtifactMeta, res)
	mc := &art.MarketingConversion

	mc.CTAs = a.reconcileCTAs(resp.CTAs, sig.CTAs, in.URL, mode)
	mc.TotalCTAs = len(mc.CTAs)
	if mode == model.ModeRich {
		mc.Tracking = sig.Tracking
		mc.ChatWidgets = sig.ChatWidgets
		mc.BookingTools = sig.BookingTools
		mc.Forms = sig.Forms
	}
	mc.EngagementPath = normalizeEngagement(resp.EngagementPath)
	mc.SalesProcess = model.ParseSalesProcess(resp.SalesProcess)
	if mc.SalesProcess != model.SalesUnknown {
		mc.SalesProcessConfidence = a.discount(mode, resp.SalesProcessConfidence)
	}
	mc.ProductJourney = a.normalizeJourney(resp.ProductJourney, mode)

	if !hasMarketingFacts(mc) {
		return art, nil
	}
	art.ExtractionStatus = model.ExtractionComplete
	art.OverallConfidence = a.confidence(mc, mode)
	return art, nil
}

// reconcileCTAs keeps the model's CTAs, boosting those a deterministic
// candidate corroborates. With no model CTAs the candidates are kept as is.
func (a *MarketingAgent) reconcileCTAs(reported []ctaResponse, candidates []signals.CTACandidate, pageURL string, mode model.Mode) []model.CTA {
	out := make([]model.CTA, 0, max(len(reported), len(candidates)))
	seen := make(map[string]bool)

	for _, r := range reported {
		label := strings.TrimSpace(r.Label)
		target := strings.TrimSpace(r.Target)
		if label == "" && target == "" {
			continue
		}
		typ := model.ParseCTAType(r.Type)
		key := string(typ) + "|" + strings.ToLower(label) + "|" + strings.ToLower(target)
		if seen[key] {
			continue
		}
		seen[key] = true

		cta := model.CTA{
			Type:       typ,
			Label:      label,
			Target:     target,
			Placement:  strings.ToLower(strings.TrimSpace(r.Placement)),
			Confidence: a.discount(mode, r.Confidence),
			Evidence:   []model.Evidence{},
		}
		if c, ok := a.matchCandidate(cta, candidates); ok {
			cta.Confidence = a.bonus(cta.Confidence)
			if cta.Placement == "" {
				cta.Placement = c.Placement
			}
			cta.Evidence = append(cta.Evidence, candidateEvidence(c, pageURL))
		}
		out = append(out, cta)
	}
	if len(out) > 0 {
		return out
	}

	for _, c := range candidates {
		out = append(out, model.CTA{
			Type:       c.Type,
			Label:      c.Label,
			Target:     c.Target,
			Placement:  c.Placement,
			Confidence: candidateConfidence,
			Evidence:   []model.Evidence{candidateEvidence(c, pageURL)},
		})
	}
	return out
}

// matchCandidate finds a scanned CTA of the same type with the same target
// or a similar label.
func (a *MarketingAgent) matchCandidate(cta model.CTA, candidates []signals.CTACandidate) (signals.CTACandidate, bool) {
	for _, c := range candidates {
		if c.Type != cta.Type {
			continue
		}
		if cta.Target != "" && strings.EqualFold(strings.TrimSpace(c.Target), cta.Target) {
			return c, true
		}
		if cta.Label != "" && a.similar(c.Label, cta.Label) {
			return c, true
		}
	}
	return signals.CTACandidate{}, false
}

func candidateEvidence(c signals.CTACandidate, pageURL string) model.Evidence {
	return model.Evidence{
		SourceURL:  pageURL,
		Selector:   c.Selector,
		Method:     model.MethodPattern,
		Confidence: 1,
	}
}

// normalizeEngagement drops unnamed steps, renumbers the rest 1..n and
// clamps probabilities.
func normalizeEngagement(in []stepResponse) []model.EngagementStep {
	out := make([]model.EngagementStep, 0, len(in))
	for _, s := range in {
		step := strings.TrimSpace(s.Step)
		if step == "" {
			continue
		}
		out = append(out, model.EngagementStep{
			Order:       len(out) + 1,
			Step:        step,
			Probability: model.Clamp01(s.Probability),
		})
	}
	return out
}

func (a *MarketingAgent) normalizeJourney(j journeyResponse, mode model.Mode) model.ProductJourney {
	out := model.ProductJourney{
		EntryOffer:  strings.TrimSpace(j.EntryOffer),
		CoreProduct: strings.TrimSpace(j.CoreProduct),
		Upsells:     cleanStrings(j.Upsells),
		CrossSells:  cleanStrings(j.CrossSells),
	}
	if out.EntryOffer != "" || out.CoreProduct != "" {
		out.Confidence = a.discount(mode, j.Confidence)
	}
	return out
}

func hasMarketingFacts(mc *model.MarketingConversion) bool {
	return len(mc.CTAs) > 0 || signals.TrackingCount(mc.Tracking) > 0 ||
		len(mc.ChatWidgets) > 0 || len(mc.BookingTools) > 0 || len(mc.Forms) > 0 ||
		len(mc.EngagementPath) > 0 || mc.SalesProcess != model.SalesUnknown ||
		mc.ProductJourney.EntryOffer != "" || mc.ProductJourney.CoreProduct != ""
}

// confidence averages CTA, sales process and journey confidences, with a
// standing pseudo-fact when tracking identifiers were found.
func (a *MarketingAgent) confidence(mc *model.MarketingConversion, mode model.Mode) float64 {
	var confs []float64
	for _, c := range mc.CTAs {
		confs = append(confs, c.Confidence)
	}
	if mc.SalesProcess != model.SalesUnknown {
		confs = append(confs, mc.SalesProcessConfidence)
	}
	if mc.ProductJourney.EntryOffer != "" || mc.ProductJourney.CoreProduct != "" {
		confs = append(confs, mc.ProductJourney.Confidence)
	}
	if signals.TrackingCount(mc.Tracking) > 0 {
		confs = append(confs, a.discount(mode, a.scoring.TrackingBonus))
	}
	return model.Clamp01(mean(confs))
}

func (a *MarketingAgent) prompt(in MarketingInput, id *model.IdentityArtifact, sig signals.Signals, text string) string {
	bi := id.BusinessIdentity
	var b strings.Builder
	writeSignal(&b, "Website", in.URL)
	writeSignal(&b, "Business", bi.Name.Value)
	writeSignal(&b, "Category", bi.Category.Value)
	writeSignal(&b, "Description", strings.TrimSpace(in.Description))
	if len(bi.Offerings) > 0 {
		names := make([]string, 0, len(bi.Offerings))
		for _, o := range bi.Offerings {
			names = append(names, o.Name)
		}
		writeSignal(&b, "Offerings", strings.Join(names, "; "))
	}

	if text == "" && len(sig.CTAs) == 0 {
		return b.String()
	}

	if len(sig.CTAs) > 0 {
		b.WriteString("\nCTA candidates found on the page:\n")
		for _, c := range sig.CTAs {
			fmt.Fprintf(&b, "- [%s] %q -> %s (%s)\n", c.Type, c.Label, c.Target, c.Placement)
		}
	}
	if len(sig.Forms) > 0 {
		b.WriteString("\nForms:\n")
		for _, f := range sig.Forms {
			fmt.Fprintf(&b, "- action %q collects: %s\n", f.Action, strings.Join(f.Fields, ", "))
		}
	}
	writeSignal(&b, "Tracking tools", strings.Join(signals.TrackingVendors(sig.Tracking), ", "))
	writeSignal(&b, "Chat widgets", strings.Join(sig.ChatWidgets, ", "))
	writeSignal(&b, "Booking tools", strings.Join(sig.BookingTools, ", "))

	if ex := excerpts(text, a.maxContent); ex != "" {
		b.WriteString("\nPage content:\n")
		b.WriteString(ex)
		b.WriteString("\n")
	}
	return b.String()
}
