package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/search"
	"github.com/sells-group/market-intel/internal/signals"
)

const (
	// maxCompetitors caps the competitor list whatever the model returns.
	maxCompetitors = 3
	// maxKeywords bounds the derived keyword list and so the query count.
	maxKeywords = 5
	// maxAuditCandidates bounds the scored candidates kept on the artifact.
	maxAuditCandidates = 10
)

// CompetitorInput is what the competitor analysis phase reads.
type CompetitorInput struct {
	Identity    *model.IdentityArtifact
	URL         string
	Description string
	// Prefetched search results. Nil means search the keywords.
	Prefetched []model.SearchResponse
	Keywords   []string
}

// CompetitorAgent scores candidate domains from search results and asks
// the model to position the best of them.
type CompetitorAgent struct {
	agent
	searcher search.Searcher
}

// NewCompetitorAgent creates a competitor agent. A nil searcher behaves as
// one that finds nothing.
func NewCompetitorAgent(client ModelClient, searcher search.Searcher, scoring config.ScoringConfig, opts ...AgentOption) *CompetitorAgent {
	if searcher == nil {
		searcher = search.Noop{}
	}
	return &CompetitorAgent{agent: newAgent(client, scoring, opts), searcher: searcher}
}

// Analyze runs the competitor phase. It always returns a well-formed artifact.
func (a *CompetitorAgent) Analyze(ctx context.Context, in CompetitorInput) *model.CompetitorArtifact {
	art, err := a.analyze(ctx, in)
	if err != nil {
		return model.EmptyCompetitor(a.failed(model.PhaseCompetitor, err))
	}
	return art
}

type competitorResponse struct {
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	URL             string   `json:"url"`
	Positioning     string   `json:"positioning"`
	OfferingSummary string   `json:"offering_summary"`
	WhySelected     []string `json:"why_selected"`
	Confidence      float64  `json:"confidence"`
}

type competitorsResponse struct {
	Competitors []competitorResponse `json:"competitors"`
}

func (a *CompetitorAgent) analyze(ctx context.Context, in CompetitorInput) (*model.CompetitorArtifact, error) {
	meta := a.meta(model.PhaseCompetitor)
	id := identityOrEmpty(in.Identity, a.now())
	bi := id.BusinessIdentity
	desc := strings.TrimSpace(in.Description)
	keywords := competitorKeywords(in.Keywords, id)

	var results []model.SearchResponse
	source := model.SourceSearch
	switch {
	case in.Prefetched != nil:
		results = in.Prefetched
		source = model.SourcePrefetched
	case len(keywords) > 0:
		results, _ = search.RunQueries(ctx, a.searcher, competitorQueries(keywords, bi.Location.Value))
	}

	own := signals.Domain(in.URL)
	candidates := ScoreCandidates(results, own, a.scoring.Competitor)

	mode := model.ModeRich
	system := competitorSystemPrompt
	if len(candidates) == 0 {
		if !bi.Name.Known() && !bi.Category.Known() && desc == "" {
			art := model.EmptyCompetitor(meta)
			art.CompetitorLandscape.Keywords = keywords
			return art, nil
		}
		mode = model.ModeEstimation
		source = model.SourceEstimation
		system = competitorEstimateSystemPrompt
	}
	meta.Mode = mode
	meta.DataSource = source

	top := candidates
	if n := a.topN(); len(top) > n {
		top = top[:n]
	}

	var resp competitorsResponse
	res, err := a.ask(ctx, model.PhaseCompetitor, a.prompt(id, desc, keywords, top), system, &resp)
	if err != nil {
		return nil, &PhaseError{Phase: model.PhaseCompetitor, Mode: mode, DataSource: source, Err: err}
	}

	art := model.EmptyCompetitor(meta)
	stamp(&art.ArtifactMeta, res)
	cl := &art.CompetitorLandscape
	cl.Keywords = keywords
	if len(candidates) > maxAuditCandidates {
		cl.Candidates = candidates[:maxAuditCandidates]
	} else {
		cl.Candidates = candidates
	}

	cl.Competitors = a.reconcile(resp.Competitors, top, own, mode)
	if len(cl.Competitors) == 0 && mode == model.ModeRich {
		cl.Competitors = promoteCandidates(top)
	}
	if len(cl.Competitors) == 0 {
		return art, nil
	}

	confs := make([]float64, len(cl.Competitors))
	for i, c := range cl.Competitors {
		confs[i] = c.Confidence
	}
	art.ExtractionStatus = model.ExtractionComplete
	art.OverallConfidence = model.Clamp01(mean(confs))
	return art, nil
}

func (a *CompetitorAgent) topN() int {
	n := a.scoring.CompetitorTopN
	if n <= 0 || n > maxCompetitors {
		return maxCompetitors
	}
	return n
}

// competitorKeywords returns the seed keywords, or keywords derived from
// the category and top offerings.
func competitorKeywords(seeds []string, id *model.IdentityArtifact) []string {
	kws := cleanStrings(seeds)
	if len(kws) == 0 {
		bi := id.BusinessIdentity
		derived := []string{bi.Category.Value}
		for i, o := range bi.Offerings {
			if i >= 2 {
				break
			}
			derived = append(derived, o.Name)
		}
		kws = cleanStrings(derived)
	}
	if len(kws) > maxKeywords {
		kws = kws[:maxKeywords]
	}
	return kws
}

func competitorQueries(keywords []string, location string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if location != "" && !strings.Contains(strings.ToLower(kw), strings.ToLower(location)) {
			kw += " " + location
		}
		out = append(out, kw)
	}
	return out
}

// reconcile cleans the model's competitors, ranks them 1..k and truncates
// to the cap. A competitor on a scored candidate domain takes its score and
// the match bonus.
func (a *CompetitorAgent) reconcile(reported []competitorResponse, top []model.CandidateScore, own string, mode model.Mode) []model.Competitor {
	limit := a.topN()
	out := make([]model.Competitor, 0, limit)
	seen := make(map[string]bool)

	for _, r := range reported {
		if len(out) >= limit {
			break
		}
		name := strings.TrimSpace(r.Name)
		domain := signals.Domain(r.Domain)
		if domain == "" {
			domain = signals.Domain(r.URL)
		}
		if name == "" && domain == "" {
			continue
		}
		if sameSite(domain, own) || isExcluded(domain) {
			continue
		}
		key := domain
		if key == "" {
			key = strings.ToLower(name)
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		c := model.Competitor{
			Name:            name,
			Domain:          domain,
			URL:             strings.TrimSpace(r.URL),
			Positioning:     strings.TrimSpace(r.Positioning),
			OfferingSummary: strings.TrimSpace(r.OfferingSummary),
			WhySelected:     reasonTags(r.WhySelected),
			Confidence:      a.discount(mode, r.Confidence),
		}
		for _, cand := range top {
			if sameSite(domain, cand.Domain) {
				c.Score = cand.Score
				c.Confidence = a.bonus(c.Confidence)
				if c.URL == "" {
					c.URL = cand.URL
				}
				break
			}
		}
		if c.Name == "" {
			c.Name = signals.DomainToName(domain)
		}
		out = append(out, c)
	}

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// promoteCandidates turns the top candidates into competitors when the
// model returned none.
func promoteCandidates(top []model.CandidateScore) []model.Competitor {
	out := make([]model.Competitor, 0, len(top))
	for i, c := range top {
		out = append(out, model.Competitor{
			Rank:            i + 1,
			Name:            signals.DomainToName(c.Domain),
			Domain:          c.Domain,
			URL:             c.URL,
			OfferingSummary: signals.Excerpt(c.Snippet, 200),
			WhySelected:     []model.ReasonTag{model.ReasonSearchProminence},
			Score:           c.Score,
			Confidence:      model.Clamp01(c.Score * candidateConfidence),
		})
	}
	return out
}

// reasonTags keeps tags from the controlled vocabulary, once each.
func reasonTags(in []string) []model.ReasonTag {
	out := []model.ReasonTag{}
	seen := make(map[model.ReasonTag]bool)
	for _, s := range in {
		t, ok := model.ParseReasonTag(s)
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (a *CompetitorAgent) prompt(id *model.IdentityArtifact, desc string, keywords []string, top []model.CandidateScore) string {
	bi := id.BusinessIdentity
	var b strings.Builder
	b.WriteString("Business profile:\n")
	writeSignal(&b, "Name", bi.Name.Value)
	writeSignal(&b, "Location", bi.Location.Value)
	writeSignal(&b, "Category", bi.Category.Value)
	writeSignal(&b, "Description", desc)
	if len(bi.Offerings) > 0 {
		names := make([]string, 0, len(bi.Offerings))
		for _, o := range bi.Offerings {
			names = append(names, o.Name)
		}
		writeSignal(&b, "Offerings", strings.Join(names, "; "))
	}
	writeSignal(&b, "Keywords", strings.Join(keywords, ", "))

	if len(top) > 0 {
		b.WriteString("\nRanked candidates:\n")
		for i, c := range top {
			fmt.Fprintf(&b, "%d. %s (score %.2f, seen for: %s)\n   %s\n   %s\n",
				i+1, c.Domain, c.Score, strings.Join(c.Keywords, "; "), c.Title, signals.Excerpt(c.Snippet, 300))
		}
	}
	return b.String()
}
