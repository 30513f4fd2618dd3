package model

// ReasonTag explains why a competitor was selected. Values come from a fixed vocabulary.
type ReasonTag string

const (
	ReasonKeywordOverlap   ReasonTag = "keyword_overlap"
	ReasonSameCategory     ReasonTag = "same_category"
	ReasonSameLocation     ReasonTag = "same_location"
	ReasonSimilarOffering  ReasonTag = "similar_offering"
	ReasonSearchProminence ReasonTag = "search_prominence"
	ReasonPriceTierMatch   ReasonTag = "price_tier_match"
	ReasonAudienceOverlap  ReasonTag = "audience_overlap"
)

// ReasonTags is the controlled vocabulary, in display order.
var ReasonTags = []ReasonTag{
	ReasonKeywordOverlap,
	ReasonSameCategory,
	ReasonSameLocation,
	ReasonSimilarOffering,
	ReasonSearchProminence,
	ReasonPriceTierMatch,
	ReasonAudienceOverlap,
}

// ParseReasonTag returns the tag for s, or false when s is outside the vocabulary.
func ParseReasonTag(s string) (ReasonTag, bool) {
	n := ReasonTag(normalizeEnum(s))
	for _, t := range ReasonTags {
		if t == n {
			return t, true
		}
	}
	return "", false
}

// CandidateScore is the deterministic ranking of a domain seen in search results.
type CandidateScore struct {
	Domain     string   `json:"domain"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Snippet    string   `json:"snippet,omitempty"`
	Frequency  float64  `json:"frequency"`
	InvRank    float64  `json:"inverse_rank"`
	Coverage   float64  `json:"keyword_coverage"`
	HasSnippet bool     `json:"has_snippet"`
	Keywords   []string `json:"keywords"`
	Score      float64  `json:"score"`
}

// Competitor is a ranked competitor with model-written positioning.
type Competitor struct {
	Rank            int         `json:"rank"`
	Name            string      `json:"name"`
	Domain          string      `json:"domain,omitempty"`
	URL             string      `json:"url,omitempty"`
	Positioning     string      `json:"positioning"`
	OfferingSummary string      `json:"offering_summary"`
	WhySelected     []ReasonTag `json:"why_selected"`
	Score           float64     `json:"score"`
	Confidence      float64     `json:"confidence"`
}

// CompetitorLandscape is the competitor analysis phase payload.
type CompetitorLandscape struct {
	Keywords    []string         `json:"keywords"`
	Candidates  []CandidateScore `json:"candidates"`
	Competitors []Competitor     `json:"competitors"`
}

// CompetitorArtifact is the output of the competitor analysis phase.
type CompetitorArtifact struct {
	ArtifactMeta
	CompetitorLandscape CompetitorLandscape `json:"competitor_landscape"`
}

// EmptyCompetitor returns a well-formed competitor artifact with no facts.
func EmptyCompetitor(meta ArtifactMeta) *CompetitorArtifact {
	return &CompetitorArtifact{
		ArtifactMeta: meta,
		CompetitorLandscape: CompetitorLandscape{
			Keywords:    []string{},
			Candidates:  []CandidateScore{},
			Competitors: []Competitor{},
		},
	}
}
