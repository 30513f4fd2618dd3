package model

// PlatformProfile is a business profile discovered on an external platform.
type PlatformProfile struct {
	Platform    string     `json:"platform"`
	URL         string     `json:"url"`
	Handle      string     `json:"handle,omitempty"`
	Rating      float64    `json:"rating,omitempty"`
	ReviewCount int        `json:"review_count,omitempty"`
	Followers   int        `json:"followers,omitempty"`
	Confidence  float64    `json:"confidence"`
	Evidence    []Evidence `json:"evidence"`
}

// ReviewSnippet is a review excerpt tied to a platform.
type ReviewSnippet struct {
	Platform  string `json:"platform"`
	Text      string `json:"text"`
	Sentiment string `json:"sentiment"`
	SourceURL string `json:"source_url,omitempty"`
}

// KnowledgePanel is a search-engine style business snapshot.
type KnowledgePanel struct {
	Title       string  `json:"title"`
	Type        string  `json:"type,omitempty"`
	Website     string  `json:"website,omitempty"`
	Description string  `json:"description,omitempty"`
	Address     string  `json:"address,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	MapsURL     string  `json:"maps_url,omitempty"`
	Status      string  `json:"status,omitempty"`
	Source      string  `json:"source"`
}

// SentimentDistribution holds review sentiment fractions that sum to ~1.
type SentimentDistribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Normalize rescales the fractions to sum to 1. An all-zero distribution is left as is.
func (s SentimentDistribution) Normalize() SentimentDistribution {
	p, n, g := Clamp01(s.Positive), Clamp01(s.Neutral), Clamp01(s.Negative)
	sum := p + n + g
	if sum == 0 {
		return SentimentDistribution{}
	}
	return SentimentDistribution{Positive: p / sum, Neutral: n / sum, Negative: g / sum}
}

// ResponseBehavior summarizes how the business answers public reviews.
type ResponseBehavior struct {
	ReplyRate           float64  `json:"reply_rate"`
	MedianResponseHours float64  `json:"median_response_hours"`
	ToneLabels          []string `json:"tone_labels"`
}

// ExternalPresence is the external presence phase payload.
type ExternalPresence struct {
	Profiles         []PlatformProfile     `json:"profiles"`
	Reviews          []ReviewSnippet       `json:"reviews"`
	KnowledgePanel   *KnowledgePanel       `json:"knowledge_panel"`
	Sentiment        SentimentDistribution `json:"sentiment"`
	ResponseBehavior ResponseBehavior      `json:"response_behavior"`
	QueriesRun       []string              `json:"queries_run"`
}

// PresenceArtifact is the output of the external presence phase.
type PresenceArtifact struct {
	ArtifactMeta
	ExternalPresence ExternalPresence `json:"external_presence"`
}

// EmptyPresence returns a well-formed presence artifact with no facts.
func EmptyPresence(meta ArtifactMeta) *PresenceArtifact {
	return &PresenceArtifact{
		ArtifactMeta: meta,
		ExternalPresence: ExternalPresence{
			Profiles:         []PlatformProfile{},
			Reviews:          []ReviewSnippet{},
			ResponseBehavior: ResponseBehavior{ToneLabels: []string{}},
			QueriesRun:       []string{},
		},
	}
}
