package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/search"
	"github.com/sells-group/market-intel/internal/signals"
)

const (
	// detectedProfileConfidence applies to a platform link found in results.
	detectedProfileConfidence = 0.6
	graphPanelConfidence      = 0.9
	placesPanelConfidence     = 0.8
	// maxResultsPerQuery bounds the hits per query rendered into the prompt.
	maxResultsPerQuery = 5
)

// reviewHosts are review and listing hosts that are not social networks.
var reviewHosts = map[string]string{
	"bbb.org":         "bbb",
	"trustpilot.com":  "trustpilot",
	"tripadvisor.com": "tripadvisor",
	"angi.com":        "angi",
	"houzz.com":       "houzz",
	"glassdoor.com":   "glassdoor",
	"g2.com":          "g2",
	"capterra.com":    "capterra",
}

// PresenceInput is what the external presence phase reads.
type PresenceInput struct {
	Identity    *model.IdentityArtifact
	URL         string
	Description string
	// Prefetched search results. Nil means run the platform queries.
	Prefetched []model.SearchResponse
}

// PresenceAgent discovers external profiles, reviews and sentiment.
type PresenceAgent struct {
	agent
	searcher search.Searcher
	panel    search.PanelLookup
}

// NewPresenceAgent creates a presence agent. A nil searcher behaves as one
// that finds nothing; panel may be nil.
func NewPresenceAgent(client ModelClient, searcher search.Searcher, panel search.PanelLookup, scoring config.ScoringConfig, opts ...AgentOption) *PresenceAgent {
	if searcher == nil {
		searcher = search.Noop{}
	}
	return &PresenceAgent{agent: newAgent(client, scoring, opts), searcher: searcher, panel: panel}
}

// Analyze runs the presence phase. It always returns a well-formed artifact.
func (a *PresenceAgent) Analyze(ctx context.Context, in PresenceInput) *model.PresenceArtifact {
	art, err := a.analyze(ctx, in)
	if err != nil {
		return model.EmptyPresence(a.failed(model.PhasePresence, err))
	}
	return art
}

type profileResponse struct {
	Platform    string  `json:"platform"`
	URL         string  `json:"url"`
	Handle      string  `json:"handle"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	Followers   int     `json:"followers"`
	Confidence  float64 `json:"confidence"`
}

type reviewResponse struct {
	Platform  string `json:"platform"`
	Text      string `json:"text"`
	Sentiment string `json:"sentiment"`
	SourceURL string `json:"source_url"`
}

type presenceResponse struct {
	Profiles         []profileResponse           `json:"profiles"`
	Reviews          []reviewResponse            `json:"reviews"`
	Sentiment        model.SentimentDistribution `json:"sentiment"`
	ResponseBehavior model.ResponseBehavior      `json:"response_behavior"`
	Confidence       float64                     `json:"confidence"`
}

func (a *PresenceAgent) analyze(ctx context.Context, in PresenceInput) (*model.PresenceArtifact, error) {
	meta := a.meta(model.PhasePresence)
	id := identityOrEmpty(in.Identity, a.now())
	subject := subjectName(id, in.URL)
	desc := strings.TrimSpace(in.Description)
	if subject == "" && desc == "" && !id.BusinessIdentity.Category.Known() {
		return model.EmptyPresence(meta), nil
	}
	location := id.BusinessIdentity.Location.Value

	var results []model.SearchResponse
	var ran []string
	source := model.SourceSearch
	switch {
	case in.Prefetched != nil:
		results = in.Prefetched
		ran = queriesOf(results)
		source = model.SourcePrefetched
	case subject != "":
		results, ran = search.RunQueries(ctx, a.searcher, presenceQueries(subject, location))
	}

	mode := model.ModeRich
	system := presenceSystemPrompt
	if model.CountResults(results) == 0 {
		mode = model.ModeEstimation
		source = model.SourceEstimation
		system = presenceEstimateSystemPrompt
	}
	meta.Mode = mode
	meta.DataSource = source

	var profiles []model.PlatformProfile
	var panel *model.KnowledgePanel
	var panelConf float64
	if mode == model.ModeRich {
		profiles = a.detectProfiles(results, subject)
		if kg := firstGraph(results); kg != nil {
			panel = search.PanelFromGraph(kg, "search")
			panelConf = graphPanelConfidence
		}
	}
	if panel == nil && a.panel != nil && subject != "" {
		p, err := a.panel.Lookup(ctx, strings.TrimSpace(subject+" "+location))
		if err != nil {
			zap.L().Warn("pipeline: knowledge panel lookup failed", zap.String("subject", subject), zap.Error(err))
		} else if p != nil {
			panel = p
			panelConf = placesPanelConfidence
		}
	}

	var resp presenceResponse
	prompt := a.prompt(id, subject, desc, results, profiles, panel)
	res, err := a.ask(ctx, model.PhasePresence, prompt, system, &resp)
	if err != nil {
		return nil, &PhaseError{Phase: model.PhasePresence, Mode: mode, DataSource: source, Err: err}
	}

	art := model.EmptyPresence(meta)
	stamp(&art.ArtifactMeta, res)
	ep := &art.ExternalPresence
	ep.QueriesRun = append(ep.QueriesRun, ran...)
	ep.Profiles = a.mergeProfiles(profiles, resp.Profiles, mode)
	ep.Reviews = normalizeReviews(resp.Reviews)
	ep.KnowledgePanel = panel
	ep.Sentiment = resp.Sentiment.Normalize()
	ep.ResponseBehavior = normalizeResponse(resp.ResponseBehavior)

	if !hasPresenceFacts(ep) {
		return art, nil
	}
	art.ExtractionStatus = model.ExtractionComplete

	var confs []float64
	for _, p := range ep.Profiles {
		confs = append(confs, p.Confidence)
	}
	if panel != nil {
		confs = append(confs, a.discount(mode, panelConf))
	}
	if resp.Confidence > 0 {
		confs = append(confs, a.discount(mode, resp.Confidence))
	}
	art.OverallConfidence = model.Clamp01(mean(confs))
	return art, nil
}

// subjectName is the business name, or a name derived from the domain.
func subjectName(id *model.IdentityArtifact, pageURL string) string {
	if n := strings.TrimSpace(id.Name()); n != "" {
		return n
	}
	return signals.DomainToName(pageURL)
}

// presenceQueries returns one query per platform or category.
func presenceQueries(name, location string) []string {
	local := strings.TrimSpace(name + " " + location)
	return []string{
		local + " google reviews",
		name + " site:facebook.com",
		name + " site:instagram.com",
		name + " site:linkedin.com",
		local + " site:yelp.com",
		name + " site:x.com OR site:twitter.com",
		name + " site:youtube.com",
		local + " reviews",
	}
}

func queriesOf(results []model.SearchResponse) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Query != "" {
			out = append(out, r.Query)
		}
	}
	return out
}

func firstGraph(results []model.SearchResponse) *model.KnowledgeGraph {
	for i := range results {
		if kg := results[i].KnowledgeGraph; kg != nil && kg.Title != "" {
			return kg
		}
	}
	return nil
}

// platformFor names the platform of a profile link.
func platformFor(link string) (string, bool) {
	if p, ok := signals.SocialPlatform(link); ok {
		return p, true
	}
	host := signals.Domain(link)
	lower := strings.ToLower(link)
	switch {
	case strings.Contains(lower, "google.com/maps"), strings.HasPrefix(host, "maps.google."),
		host == "g.page", strings.Contains(lower, "goo.gl/maps"):
		return "google", true
	}
	for h, p := range reviewHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return p, true
		}
	}
	return "", false
}

// handleOf is the first path segment of a profile URL.
func handleOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	h := parts[0]
	switch h {
	case "company", "in", "pages", "channel", "c", "biz", "user":
		if len(parts) > 1 {
			h = parts[1]
		}
	}
	return strings.TrimPrefix(h, "@")
}

// detectProfiles keeps the best link per platform found in results. A
// result whose title names the business gets the match bonus.
func (a *PresenceAgent) detectProfiles(results []model.SearchResponse, subject string) []model.PlatformProfile {
	byPlatform := make(map[string]int)
	var out []model.PlatformProfile
	for _, resp := range results {
		for _, r := range resp.Organic {
			platform, ok := platformFor(r.Link)
			if !ok {
				continue
			}
			conf := detectedProfileConfidence
			if a.similar(r.Title, subject) {
				conf = a.bonus(conf)
			}
			p := model.PlatformProfile{
				Platform:   platform,
				URL:        r.Link,
				Handle:     handleOf(r.Link),
				Confidence: conf,
				Evidence: []model.Evidence{{
					SourceURL:  r.Link,
					Method:     model.MethodSearch,
					Confidence: conf,
				}},
			}
			if i, seen := byPlatform[platform]; seen {
				if conf > out[i].Confidence {
					out[i] = p
				}
				continue
			}
			byPlatform[platform] = len(out)
			out = append(out, p)
		}
	}
	return out
}

// mergeProfiles enriches detected profiles with model figures. A model
// profile on a detected platform corroborates it; others are kept only
// when they carry a URL or the phase is estimating.
func (a *PresenceAgent) mergeProfiles(detected []model.PlatformProfile, reported []profileResponse, mode model.Mode) []model.PlatformProfile {
	out := make([]model.PlatformProfile, 0, len(detected)+len(reported))
	out = append(out, detected...)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.Platform] = i
	}

	for _, r := range reported {
		platform := strings.ToLower(strings.TrimSpace(r.Platform))
		if platform == "" {
			if p, ok := platformFor(r.URL); ok {
				platform = p
			} else {
				continue
			}
		}
		if platform == "twitter" {
			platform = "x"
		}

		if i, ok := index[platform]; ok {
			p := &out[i]
			p.Rating = clampRating(r.Rating)
			p.ReviewCount = max(r.ReviewCount, 0)
			p.Followers = max(r.Followers, 0)
			if p.Handle == "" {
				p.Handle = strings.TrimSpace(r.Handle)
			}
			p.Confidence = a.bonus(p.Confidence)
			p.Evidence = append(p.Evidence, model.Evidence{SourceURL: p.URL, Method: model.MethodModel, Confidence: model.Clamp01(r.Confidence)})
			continue
		}

		link := strings.TrimSpace(r.URL)
		if link == "" && mode != model.ModeEstimation {
			continue
		}
		conf := a.discount(mode, r.Confidence)
		index[platform] = len(out)
		out = append(out, model.PlatformProfile{
			Platform:    platform,
			URL:         link,
			Handle:      strings.TrimSpace(r.Handle),
			Rating:      clampRating(r.Rating),
			ReviewCount: max(r.ReviewCount, 0),
			Followers:   max(r.Followers, 0),
			Confidence:  conf,
			Evidence:    []model.Evidence{{SourceURL: link, Method: model.MethodModel, Confidence: conf}},
		})
	}
	return out
}

func clampRating(r float64) float64 {
	if r != r || r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}

func normalizeReviews(in []reviewResponse) []model.ReviewSnippet {
	out := make([]model.ReviewSnippet, 0, len(in))
	for _, r := range in {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		sentiment := strings.ToLower(strings.TrimSpace(r.Sentiment))
		switch sentiment {
		case "positive", "neutral", "negative":
		default:
			sentiment = "neutral"
		}
		out = append(out, model.ReviewSnippet{
			Platform:  strings.ToLower(strings.TrimSpace(r.Platform)),
			Text:      text,
			Sentiment: sentiment,
			SourceURL: strings.TrimSpace(r.SourceURL),
		})
	}
	return out
}

func normalizeResponse(rb model.ResponseBehavior) model.ResponseBehavior {
	out := model.ResponseBehavior{
		ReplyRate:           model.Clamp01(rb.ReplyRate),
		MedianResponseHours: rb.MedianResponseHours,
		ToneLabels:          []string{},
	}
	if out.MedianResponseHours != out.MedianResponseHours || out.MedianResponseHours < 0 {
		out.MedianResponseHours = 0
	}
	for _, t := range cleanStrings(rb.ToneLabels) {
		out.ToneLabels = append(out.ToneLabels, strings.ToLower(t))
	}
	return out
}

func hasPresenceFacts(ep *model.ExternalPresence) bool {
	s := ep.Sentiment
	return len(ep.Profiles) > 0 || len(ep.Reviews) > 0 || ep.KnowledgePanel != nil ||
		s.Positive+s.Neutral+s.Negative > 0
}

func (a *PresenceAgent) prompt(id *model.IdentityArtifact, subject, desc string, results []model.SearchResponse, profiles []model.PlatformProfile, panel *model.KnowledgePanel) string {
	bi := id.BusinessIdentity
	var b strings.Builder
	writeSignal(&b, "Business", subject)
	writeSignal(&b, "Location", bi.Location.Value)
	writeSignal(&b, "Category", bi.Category.Value)
	writeSignal(&b, "Description", desc)

	if panel != nil {
		b.WriteString("\nKnowledge panel:\n")
		writeSignal(&b, "Title", panel.Title)
		writeSignal(&b, "Type", panel.Type)
		writeSignal(&b, "Address", panel.Address)
		if panel.Rating > 0 {
			fmt.Fprintf(&b, "- Rating: %.1f (%d reviews)\n", panel.Rating, panel.ReviewCount)
		}
	}

	if len(profiles) > 0 {
		b.WriteString("\nProfiles detected from result links:\n")
		for _, p := range profiles {
			fmt.Fprintf(&b, "- %s: %s\n", p.Platform, p.URL)
		}
	}

	if len(results) > 0 {
		b.WriteString("\nSearch results:\n")
		for _, resp := range results {
			fmt.Fprintf(&b, "\nQuery: %s\n", resp.Query)
			for i, r := range resp.Organic {
				if i >= maxResultsPerQuery {
					break
				}
				fmt.Fprintf(&b, "%d. %s | %s\n   %s\n", r.Position, r.Title, r.Link, signals.Excerpt(r.Snippet, 300))
			}
		}
	}
	return b.String()
}
