package pipeline

import (
	"encoding/json"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/signals"
)

// Insights are the compact per-phase projections sent to the narrative
// prompt. Every projection tolerates a nil or empty artifact.

type identityInsight struct {
	Name         string         `json:"name,omitempty"`
	NameConf     float64        `json:"name_confidence"`
	Location     string         `json:"location,omitempty"`
	Category     string         `json:"category,omitempty"`
	Offerings    []string       `json:"top_offerings,omitempty"`
	ProofAssets  map[string]int `json:"proof_assets,omitempty"`
	Packages     []string       `json:"packages,omitempty"`
	HasEmail     bool           `json:"has_email"`
	HasPhone     bool           `json:"has_phone"`
	SocialCount  int            `json:"social_links"`
	Estimated    bool           `json:"estimated,omitempty"`
	Confidence   float64        `json:"confidence"`
	ExtractError string         `json:"extraction_error,omitempty"`
}

type presenceInsight struct {
	Profiles    []string                     `json:"profiles,omitempty"`
	Rating      float64                      `json:"rating,omitempty"`
	ReviewCount int                          `json:"review_count,omitempty"`
	Panel       string                       `json:"knowledge_panel,omitempty"`
	Sentiment   *model.SentimentDistribution `json:"sentiment,omitempty"`
	ReplyRate   float64                      `json:"reply_rate"`
	Tone        []string                     `json:"tone,omitempty"`
	SampleQuote string                       `json:"sample_review,omitempty"`
	Source      model.DataSource             `json:"data_source"`
	Confidence  float64                      `json:"confidence"`
}

type marketingInsight struct {
	TotalCTAs    int                `json:"total_ctas"`
	TopCTAs      []string           `json:"top_ctas,omitempty"`
	Tracking     []string           `json:"tracking,omitempty"`
	ChatWidgets  []string           `json:"chat_widgets,omitempty"`
	BookingTools []string           `json:"booking_tools,omitempty"`
	FormFields   []string           `json:"form_fields,omitempty"`
	SalesProcess model.SalesProcess `json:"sales_process"`
	Journey      string             `json:"journey,omitempty"`
	Path         []string           `json:"engagement_path,omitempty"`
	Estimated    bool               `json:"estimated,omitempty"`
	Confidence   float64            `json:"confidence"`
}

type competitorInsight struct {
	Name        string   `json:"name"`
	Domain      string   `json:"domain,omitempty"`
	Positioning string   `json:"positioning,omitempty"`
	Offering    string   `json:"offering,omitempty"`
	Why         []string `json:"why_selected,omitempty"`
}

type landscapeInsight struct {
	Keywords    []string            `json:"keywords,omitempty"`
	Competitors []competitorInsight `json:"competitors"`
	Estimated   bool                `json:"estimated,omitempty"`
	Confidence  float64             `json:"confidence"`
}

func projectIdentity(a *model.IdentityArtifact) identityInsight {
	if a == nil {
		return identityInsight{}
	}
	bi := a.BusinessIdentity
	out := identityInsight{
		Name:         bi.Name.Value,
		NameConf:     bi.Name.Confidence,
		Location:     bi.Location.Value,
		Category:     bi.Category.Value,
		HasEmail:     len(bi.Contact.Emails) > 0,
		HasPhone:     len(bi.Contact.Phones) > 0,
		SocialCount:  len(bi.Contact.SocialLinks),
		Estimated:    a.Mode == model.ModeEstimation,
		Confidence:   a.OverallConfidence,
		ExtractError: a.ExtractionError,
	}
	out.Offerings = topOfferings(a, 5)
	for _, p := range bi.ProofAssets {
		if out.ProofAssets == nil {
			out.ProofAssets = make(map[string]int)
		}
		out.ProofAssets[string(p.Type)]++
	}
	for _, p := range bi.Packages {
		out.Packages = append(out.Packages, p.Name)
	}
	return out
}

func topOfferings(a *model.IdentityArtifact, n int) []string {
	if a == nil {
		return []string{}
	}
	out := []string{}
	for _, o := range a.BusinessIdentity.Offerings {
		if len(out) >= n {
			break
		}
		out = append(out, o.Name)
	}
	return out
}

func projectPresence(a *model.PresenceArtifact) presenceInsight {
	if a == nil {
		return presenceInsight{}
	}
	ep := a.ExternalPresence
	out := presenceInsight{
		ReplyRate:  ep.ResponseBehavior.ReplyRate,
		Tone:       ep.ResponseBehavior.ToneLabels,
		Source:     a.DataSource,
		Confidence: a.OverallConfidence,
	}
	for _, p := range ep.Profiles {
		out.Profiles = append(out.Profiles, p.Platform)
		out.ReviewCount += p.ReviewCount
	}
	out.Rating = presenceRating(a)
	if kp := ep.KnowledgePanel; kp != nil {
		out.Panel = kp.Title
		if kp.Type != "" {
			out.Panel += " (" + kp.Type + ")"
		}
	}
	if s := ep.Sentiment; s.Positive+s.Neutral+s.Negative > 0 {
		out.Sentiment = &s
	}
	if len(ep.Reviews) > 0 {
		out.SampleQuote = signals.Excerpt(ep.Reviews[0].Text, 200)
	}
	return out
}

// presenceRating prefers the knowledge panel rating over profile ratings.
func presenceRating(a *model.PresenceArtifact) float64 {
	if a == nil {
		return 0
	}
	if kp := a.ExternalPresence.KnowledgePanel; kp != nil && kp.Rating > 0 {
		return kp.Rating
	}
	var best float64
	for _, p := range a.ExternalPresence.Profiles {
		best = max(best, p.Rating)
	}
	return best
}

func projectMarketing(a *model.MarketingArtifact) marketingInsight {
	if a == nil {
		return marketingInsight{}
	}
	mc := a.MarketingConversion
	out := marketingInsight{
		TotalCTAs:    mc.TotalCTAs,
		Tracking:     signals.TrackingVendors(mc.Tracking),
		ChatWidgets:  mc.ChatWidgets,
		BookingTools: mc.BookingTools,
		SalesProcess: mc.SalesProcess,
		Estimated:    a.Mode == model.ModeEstimation,
		Confidence:   a.OverallConfidence,
	}
	for i, c := range mc.CTAs {
		if i >= 5 {
			break
		}
		out.TopCTAs = append(out.TopCTAs, string(c.Type)+": "+c.Label)
	}
	seen := map[string]bool{}
	for _, f := range mc.Forms {
		for _, field := range f.Fields {
			if !seen[field] {
				seen[field] = true
				out.FormFields = append(out.FormFields, field)
			}
		}
	}
	if j := mc.ProductJourney; j.EntryOffer != "" || j.CoreProduct != "" {
		out.Journey = j.EntryOffer + " -> " + j.CoreProduct
	}
	for _, s := range mc.EngagementPath {
		out.Path = append(out.Path, s.Step)
	}
	return out
}

func projectCompetitors(a *model.CompetitorArtifact) landscapeInsight {
	out := landscapeInsight{Competitors: []competitorInsight{}}
	if a == nil {
		return out
	}
	cl := a.CompetitorLandscape
	out.Keywords = cl.Keywords
	out.Estimated = a.Mode == model.ModeEstimation
	out.Confidence = a.OverallConfidence
	for _, c := range cl.Competitors {
		ci := competitorInsight{
			Name:        c.Name,
			Domain:      c.Domain,
			Positioning: c.Positioning,
			Offering:    c.OfferingSummary,
		}
		for _, t := range c.WhySelected {
			ci.Why = append(ci.Why, string(t))
		}
		out.Competitors = append(out.Competitors, ci)
	}
	return out
}

// renderInsight marshals v for the prompt.
func renderInsight(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "not available"
	}
	return string(data)
}
