package model

import (
	"time"
)

// ReportStatus is the outcome of consolidation.
type ReportStatus string

const (
	ReportComplete ReportStatus = "complete"
	ReportFailed   ReportStatus = "failed"
)

// DataQuality summarizes phase coverage and weak spots.
type DataQuality struct {
	PhasesCompleted    []PhaseName `json:"phases_completed"`
	PhasesMissing      []PhaseName `json:"phases_missing"`
	LowConfidenceAreas []string    `json:"low_confidence_areas"`
}

// ReportSummary holds key facts pulled directly from the phase artifacts.
type ReportSummary struct {
	BusinessName   string                 `json:"business_name"`
	Location       string                 `json:"location"`
	Category       string                 `json:"category"`
	TopOfferings   []string               `json:"top_offerings"`
	ProofAssets    int                    `json:"proof_assets"`
	ProfilesFound  int                    `json:"profiles_found"`
	PresenceSource DataSource             `json:"presence_source"`
	Rating         float64                `json:"rating,omitempty"`
	Sentiment      *SentimentDistribution `json:"sentiment,omitempty"`
	TotalCTAs      int                    `json:"total_ctas"`
	SalesProcess   SalesProcess           `json:"sales_process"`
	TrackingTools  []string               `json:"tracking_tools"`
	Competitors    []string               `json:"competitors"`
}

// PhaseOutputs keeps the raw artifacts for audit. Missing phases are nil.
type PhaseOutputs struct {
	Identity   *IdentityArtifact   `json:"identity"`
	Presence   *PresenceArtifact   `json:"external_presence"`
	Marketing  *MarketingArtifact  `json:"marketing_conversion"`
	Competitor *CompetitorArtifact `json:"competitor_analysis"`
}

// Report is the consolidated, audience-facing result of one run.
type Report struct {
	ReportID          string                `json:"report_id"`
	RunID             string                `json:"run_id,omitempty"`
	GeneratedAt       time.Time             `json:"generated_at"`
	Status            ReportStatus          `json:"status"`
	Target            string                `json:"target,omitempty"`
	Markdown          string                `json:"report_markdown"`
	Summary           ReportSummary         `json:"summary"`
	OverallConfidence float64               `json:"overall_confidence"`
	PhaseConfidences  map[PhaseName]float64 `json:"phase_confidences"`
	DataQuality       DataQuality           `json:"data_quality"`
	PhaseOutputs      PhaseOutputs          `json:"phase_outputs"`
	Model             string                `json:"model,omitempty"`
	Usage             TokenUsage            `json:"usage"`
}
