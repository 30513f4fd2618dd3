package model

import (
	"time"
)

// PhaseName identifies a pipeline stage.
type PhaseName string

const (
	PhaseIdentity      PhaseName = "identity"
	PhasePresence      PhaseName = "external_presence"
	PhaseMarketing     PhaseName = "marketing_conversion"
	PhaseCompetitor    PhaseName = "competitor_analysis"
	PhaseConsolidation PhaseName = "consolidation"
)

// Phases lists the four extraction phases in execution order.
var Phases = []PhaseName{PhaseIdentity, PhasePresence, PhaseMarketing, PhaseCompetitor}

// Valid reports whether p is one of the known phases, consolidation included.
func (p PhaseName) Valid() bool {
	switch p {
	case PhaseIdentity, PhasePresence, PhaseMarketing, PhaseCompetitor, PhaseConsolidation:
		return true
	}
	return false
}

// ExtractionStatus describes how a phase artifact was produced.
type ExtractionStatus string

const (
	ExtractionComplete ExtractionStatus = "complete"
	ExtractionEmpty    ExtractionStatus = "empty"
	ExtractionFailed   ExtractionStatus = "failed"
)

// Mode is the extraction path a phase agent selected.
type Mode string

const (
	ModeRich       Mode = "rich"       // page HTML or text available
	ModeEstimation Mode = "estimation" // description only; category priors
	ModeNone       Mode = "none"       // nothing usable
)

// DataSource records where a phase got its facts.
type DataSource string

const (
	SourceContent     DataSource = "content"
	SourceDescription DataSource = "description"
	SourceSearch      DataSource = "search"
	SourcePrefetched  DataSource = "prefetched"
	SourceEstimation  DataSource = "estimation"
	SourceNone        DataSource = "none"
)

// TokenUsage reports model token consumption.
type TokenUsage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost_usd,omitempty"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.Cost += other.Cost
}

// Total returns prompt plus completion tokens.
func (u TokenUsage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// ArtifactMeta is the envelope shared by every phase artifact.
type ArtifactMeta struct {
	Phase             PhaseName        `json:"phase"`
	ExtractedAt       time.Time        `json:"extracted_at"`
	OverallConfidence float64          `json:"overall_confidence"`
	ExtractionStatus  ExtractionStatus `json:"extraction_status"`
	ExtractionError   string           `json:"extraction_error,omitempty"`
	DataSource        DataSource       `json:"data_source"`
	Mode              Mode             `json:"mode"`
	Model             string           `json:"model,omitempty"`
	Usage             TokenUsage       `json:"usage"`
}

// Meta returns the envelope. It lets callers treat artifacts uniformly.
func (m *ArtifactMeta) Meta() *ArtifactMeta { return m }

// Empty reports whether the artifact carries no usable phase data.
func (m *ArtifactMeta) Empty() bool {
	return m.ExtractionStatus == ExtractionFailed || m.ExtractionStatus == ExtractionEmpty
}

// Artifact is implemented by every phase artifact.
type Artifact interface {
	Meta() *ArtifactMeta
}

// NewMeta returns an empty envelope for phase stamped with now.
func NewMeta(phase PhaseName, now time.Time) ArtifactMeta {
	return ArtifactMeta{
		Phase:            phase,
		ExtractedAt:      now.UTC(),
		ExtractionStatus: ExtractionEmpty,
		DataSource:       SourceNone,
		Mode:             ModeNone,
	}
}

// Evidence references the source of an extracted fact.
type Evidence struct {
	SourceURL  string  `json:"source_url,omitempty"`
	Selector   string  `json:"selector,omitempty"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Evidence methods.
const (
	MethodStructuredData = "structured_data"
	MethodMetaTag        = "meta_tag"
	MethodPattern        = "pattern"
	MethodModel          = "model"
	MethodSearch         = "search"
	MethodPlaces         = "places"
)

// Fact is a single extracted value with its confidence and audit trail.
type Fact struct {
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// Known reports whether the fact carries a value.
func (f Fact) Known() bool { return f.Value != "" }

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
