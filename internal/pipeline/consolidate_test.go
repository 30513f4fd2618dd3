package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/llm"
	"github.com/sells-group/market-intel/internal/model"
)

func marketingArtifact(conf float64) *model.MarketingArtifact {
	art := model.EmptyMarketing(model.NewMeta(model.PhaseMarketing, fixedNow))
	art.ExtractionStatus = model.ExtractionComplete
	art.Mode = model.ModeRich
	art.OverallConfidence = conf
	art.Usage = model.TokenUsage{PromptTokens: 10, CompletionTokens: 5}
	mc := &art.MarketingConversion
	mc.CTAs = []model.CTA{{Type: model.CTAButton, Label: "Book now", Confidence: 0.7, Evidence: []model.Evidence{}}}
	mc.TotalCTAs = 1
	mc.SalesProcess = model.SalesAppointment
	mc.SalesProcessConfidence = 0.4
	mc.Tracking.Analytics = []model.TrackingID{{Vendor: "google_analytics_4", ID: "G-ABC1234XYZ"}}
	return art
}

func estimatedPresence(conf float64) *model.PresenceArtifact {
	art := model.EmptyPresence(model.NewMeta(model.PhasePresence, fixedNow))
	art.ExtractionStatus = model.ExtractionComplete
	art.Mode = model.ModeEstimation
	art.DataSource = model.SourceEstimation
	art.OverallConfidence = conf
	art.ExternalPresence.Profiles = []model.PlatformProfile{{Platform: "google", Rating: 4.1, Confidence: conf}}
	art.ExternalPresence.Sentiment = model.SentimentDistribution{Positive: 0.7, Neutral: 0.2, Negative: 0.1}
	return art
}

func newConsolidator(m ModelClient) *Consolidator {
	c := NewConsolidator(m, testScoring())
	c.now = fixedClock
	c.newID = func() string { return "report-1" }
	return c
}

func TestOverallConfidence_Renormalizes(t *testing.T) {
	w := testScoring().Weights

	got := OverallConfidence(map[model.PhaseName]float64{
		model.PhaseIdentity:  0.8,
		model.PhaseMarketing: 0.6,
	}, w)
	assert.Equal(t, 0.7167, got)

	all := OverallConfidence(map[model.PhaseName]float64{
		model.PhaseIdentity:   0.8,
		model.PhasePresence:   0.5,
		model.PhaseMarketing:  0.6,
		model.PhaseCompetitor: 0.4,
	}, w)
	// (0.28 + 0.10 + 0.15 + 0.08) / 1.0
	assert.Equal(t, 0.61, all)

	assert.Zero(t, OverallConfidence(nil, w))
	assert.Equal(t, 1.0, OverallConfidence(map[model.PhaseName]float64{model.PhaseIdentity: 7}, w))
}

func TestOverallConfidence_StableAcrossCalls(t *testing.T) {
	w := testScoring().Weights
	scores := map[model.PhaseName]float64{
		model.PhaseIdentity:      0.83,
		model.PhasePresence:      0.41,
		model.PhaseMarketing:     0.67,
		model.PhaseCompetitor:    0.29,
		model.PhaseConsolidation: 0.99,
	}

	want := OverallConfidence(scores, w)
	// (0.83*0.35 + 0.41*0.2 + 0.67*0.25 + 0.29*0.2) / 1.0; unweighted phases are ignored.
	assert.InDelta(t, 0.598, want, 1e-9)
	for range 50 {
		assert.Equal(t, want, OverallConfidence(scores, w))
	}
}

func TestConsolidate_RenormalizedTwoPhases(t *testing.T) {
	m := &mockModel{}
	m.On("Complete", mock.Anything, model.PhaseConsolidation, mock.Anything, consolidationSystemPrompt,
		mock.MatchedBy(func(o llm.Options) bool { return o.RequiresJSON != nil && !*o.RequiresJSON })).
		Return(textResult("## Executive Summary\nAcme sells widgets.\n"), nil)

	rep := newConsolidator(m).Consolidate(context.Background(), model.PhaseOutputs{
		Identity:  acmeIdentity(),
		Marketing: marketingArtifact(0.6),
	})

	assert.Equal(t, 0.7167, rep.OverallConfidence)
	assert.Equal(t, model.ReportComplete, rep.Status)
	assert.Equal(t, "report-1", rep.ReportID)
	assert.Equal(t, fixedNow, rep.GeneratedAt)
	assert.Equal(t, []model.PhaseName{model.PhaseIdentity, model.PhaseMarketing}, rep.DataQuality.PhasesCompleted)
	assert.Equal(t, []model.PhaseName{model.PhasePresence, model.PhaseCompetitor}, rep.DataQuality.PhasesMissing)
	assert.Len(t, rep.PhaseConfidences, 4)
	assert.Zero(t, rep.PhaseConfidences[model.PhasePresence])

	assert.True(t, strings.HasPrefix(rep.Markdown, "# Market Intelligence Report: Acme Corp\n"))
	assert.Contains(t, rep.Markdown, "Acme sells widgets.")
	assert.Contains(t, rep.Markdown, "## Confidence Breakdown")
	assert.Contains(t, rep.Markdown, "| marketing_conversion |")

	s := rep.Summary
	assert.Equal(t, "Acme Corp", s.BusinessName)
	assert.Equal(t, "Austin, TX", s.Location)
	assert.Equal(t, []string{"Industrial widgets", "Widget repair"}, s.TopOfferings)
	assert.Equal(t, 1, s.TotalCTAs)
	assert.Equal(t, model.SalesAppointment, s.SalesProcess)
	assert.Equal(t, []string{"google_analytics_4"}, s.TrackingTools)
	assert.Equal(t, model.SourceNone, s.PresenceSource)
	assert.Empty(t, s.Competitors)

	assert.Equal(t, []string{"marketing_conversion.sales_process"}, rep.DataQuality.LowConfidenceAreas)
	assert.Equal(t, int64(10+400), rep.Usage.PromptTokens)
	assert.Equal(t, "claude-test", rep.Model)
	m.AssertExpectations(t)
}

func TestConsolidate_ScenarioB_NothingPresent(t *testing.T) {
	m := &mockModel{}
	rep := newConsolidator(m).Consolidate(context.Background(), model.PhaseOutputs{})

	assert.Zero(t, rep.OverallConfidence)
	assert.Equal(t, model.Phases, rep.DataQuality.PhasesMissing)
	assert.Empty(t, rep.DataQuality.PhasesCompleted)
	assert.NotNil(t, rep.DataQuality.LowConfidenceAreas)
	assert.NotEmpty(t, rep.Markdown)
	assert.Contains(t, rep.Markdown, "Unidentified business")
	assert.Contains(t, rep.Markdown, "Missing phases: identity, external_presence, marketing_conversion, competitor_analysis")
	assert.Equal(t, model.ReportComplete, rep.Status)
	assert.Equal(t, model.SalesUnknown, rep.Summary.SalesProcess)
	assert.NotNil(t, rep.Summary.TopOfferings)
	m.AssertNotCalled(t, "Complete")
}

func TestConsolidate_EmptyAndFailedArtifactsCountAsMissing(t *testing.T) {
	m := &mockModel{}
	failed := model.EmptyCompetitor(model.NewMeta(model.PhaseCompetitor, fixedNow))
	failed.ExtractionStatus = model.ExtractionFailed
	failed.OverallConfidence = 0.9

	rep := newConsolidator(m).Consolidate(context.Background(), model.PhaseOutputs{
		Identity:   model.EmptyIdentity(model.NewMeta(model.PhaseIdentity, fixedNow)),
		Competitor: failed,
	})

	assert.Zero(t, rep.OverallConfidence)
	assert.Len(t, rep.DataQuality.PhasesMissing, 4)
	assert.Contains(t, rep.Markdown, "| competitor_analysis | failed |")
}

func TestConsolidate_ModelFailureYieldsFailedReport(t *testing.T) {
	m := &mockModel{}
	m.onPhase(model.PhaseConsolidation).Return(nil, errors.New("llm: all models failed"))

	rep := newConsolidator(m).Consolidate(context.Background(), model.PhaseOutputs{Identity: acmeIdentity()})

	require.NotNil(t, rep)
	assert.Equal(t, model.ReportFailed, rep.Status)
	assert.Contains(t, rep.Markdown, "llm: all models failed")
	assert.Equal(t, 0.8, rep.OverallConfidence)
	assert.Equal(t, "Acme Corp", rep.Summary.BusinessName)
}

func TestConsolidate_LowConfidenceAreas(t *testing.T) {
	m := &mockModel{}
	m.onPhase(model.PhaseConsolidation).Return(textResult("report"), nil)

	id := acmeIdentity()
	id.BusinessIdentity.Category.Confidence = 0.2

	rep := newConsolidator(m).Consolidate(context.Background(), model.PhaseOutputs{
		Identity: id,
		Presence: estimatedPresence(0.3),
	})

	assert.Equal(t, []string{
		"external_presence",
		"external_presence.estimated",
		"identity.category",
	}, rep.DataQuality.LowConfidenceAreas)

	s := rep.Summary
	assert.Equal(t, 1, s.ProfilesFound)
	assert.Equal(t, model.SourceEstimation, s.PresenceSource)
	assert.Equal(t, 4.1, s.Rating)
	require.NotNil(t, s.Sentiment)
	assert.Equal(t, 0.7, s.Sentiment.Positive)
}

func TestPresent(t *testing.T) {
	var nilIdentity *model.IdentityArtifact
	assert.False(t, Present(nil))
	assert.False(t, Present(nilIdentity))
	assert.False(t, Present(model.EmptyIdentity(model.NewMeta(model.PhaseIdentity, fixedNow))))
	assert.True(t, Present(acmeIdentity()))
}
