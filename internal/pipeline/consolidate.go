package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/llm"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/signals"
)

// Consolidator merges the phase artifacts into the final report.
type Consolidator struct {
	llm     ModelClient
	scoring config.ScoringConfig
	now     func() time.Time
	newID   func() string
}

// NewConsolidator creates a Consolidator.
func NewConsolidator(client ModelClient, scoring config.ScoringConfig) *Consolidator {
	return &Consolidator{
		llm:     client,
		scoring: scoring,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Present reports whether an artifact carries usable phase data.
func Present(a model.Artifact) bool {
	if a == nil {
		return false
	}
	switch v := a.(type) {
	case *model.IdentityArtifact:
		if v == nil {
			return false
		}
	case *model.PresenceArtifact:
		if v == nil {
			return false
		}
	case *model.MarketingArtifact:
		if v == nil {
			return false
		}
	case *model.CompetitorArtifact:
		if v == nil {
			return false
		}
	}
	return !a.Meta().Empty()
}

// artifactFor returns the artifact of phase as an interface, nil when absent.
func artifactFor(out model.PhaseOutputs, phase model.PhaseName) model.Artifact {
	switch phase {
	case model.PhaseIdentity:
		if out.Identity != nil {
			return out.Identity
		}
	case model.PhasePresence:
		if out.Presence != nil {
			return out.Presence
		}
	case model.PhaseMarketing:
		if out.Marketing != nil {
			return out.Marketing
		}
	case model.PhaseCompetitor:
		if out.Competitor != nil {
			return out.Competitor
		}
	}
	return nil
}

// OverallConfidence is the weighted mean of the confidences in scores,
// which must hold only the phases present. Weights renormalize over those
// phases; a missing phase contributes neither value nor weight. The result
// is rounded to 4 decimals and is 0 when nothing is present. Phases are
// summed in pipeline order so the result does not depend on map order.
func OverallConfidence(scores map[model.PhaseName]float64, w config.PhaseWeights) float64 {
	var sum, weight float64
	for _, phase := range model.Phases {
		c, ok := scores[phase]
		pw := w.Weight(phase)
		if !ok || pw <= 0 {
			continue
		}
		sum += model.Clamp01(c) * pw
		weight += pw
	}
	if weight == 0 {
		return 0
	}
	return round4(model.Clamp01(sum / weight))
}

// Consolidate builds the report from whatever artifacts exist. Any subset
// may be nil, empty or failed. It never returns nil: a narrative failure
// yields a report with status failed and the error in the markdown.
func (c *Consolidator) Consolidate(ctx context.Context, out model.PhaseOutputs) *model.Report {
	rep := &model.Report{
		ReportID:         c.newID(),
		GeneratedAt:      c.now().UTC(),
		Status:           model.ReportComplete,
		PhaseConfidences: make(map[model.PhaseName]float64, len(model.Phases)),
		PhaseOutputs:     out,
		DataQuality: model.DataQuality{
			PhasesCompleted:    []model.PhaseName{},
			PhasesMissing:      []model.PhaseName{},
			LowConfidenceAreas: []string{},
		},
	}

	present := make(map[model.PhaseName]float64)
	for _, phase := range model.Phases {
		a := artifactFor(out, phase)
		if a != nil {
			rep.Usage.Add(a.Meta().Usage)
		}
		if !Present(a) {
			rep.PhaseConfidences[phase] = 0
			rep.DataQuality.PhasesMissing = append(rep.DataQuality.PhasesMissing, phase)
			continue
		}
		conf := model.Clamp01(a.Meta().OverallConfidence)
		rep.PhaseConfidences[phase] = conf
		present[phase] = conf
		rep.DataQuality.PhasesCompleted = append(rep.DataQuality.PhasesCompleted, phase)
	}

	rep.OverallConfidence = OverallConfidence(present, c.scoring.Weights)
	rep.Summary = summarize(out, present)
	rep.DataQuality.LowConfidenceAreas = c.lowConfidenceAreas(out, present)

	table := c.confidenceTable(rep)
	title := reportTitle(out)

	if len(present) == 0 {
		rep.Markdown = title + placeholderMarkdown(rep.DataQuality.PhasesMissing) + "\n" + table
		return rep
	}

	res, err := c.narrate(ctx, out, present, rep.OverallConfidence)
	if err != nil {
		zap.L().Error("pipeline: report synthesis failed", zap.Error(err))
		rep.Status = model.ReportFailed
		rep.Markdown = title + "## Report generation failed\n\n" + err.Error() + "\n\n" + table
		return rep
	}
	rep.Model = res.Model
	rep.Usage.Add(res.Usage)
	rep.Markdown = title + strings.TrimSpace(res.Raw) + "\n\n" + table
	return rep
}

func (c *Consolidator) narrate(ctx context.Context, out model.PhaseOutputs, present map[model.PhaseName]float64, overall float64) (*llm.Result, error) {
	if c.llm == nil {
		return nil, llm.ErrNoProvider
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Overall confidence: %.2f\n", overall)

	section := func(label string, phase model.PhaseName, insight any) {
		if _, ok := present[phase]; !ok {
			fmt.Fprintf(&b, "\n### %s\nnot available\n", label)
			return
		}
		fmt.Fprintf(&b, "\n### %s (confidence %.2f)\n%s\n", label, present[phase], renderInsight(insight))
	}
	section("Business identity", model.PhaseIdentity, projectIdentity(out.Identity))
	section("External presence", model.PhasePresence, projectPresence(out.Presence))
	section("Marketing and conversion", model.PhaseMarketing, projectMarketing(out.Marketing))
	section("Competitive landscape", model.PhaseCompetitor, projectCompetitors(out.Competitor))

	return c.llm.Complete(ctx, model.PhaseConsolidation, b.String(), consolidationSystemPrompt, llm.Options{RequiresJSON: llm.Bool(false)})
}

// summarize pulls key facts straight from the present artifacts.
func summarize(out model.PhaseOutputs, present map[model.PhaseName]float64) model.ReportSummary {
	s := model.ReportSummary{
		TopOfferings:   []string{},
		PresenceSource: model.SourceNone,
		SalesProcess:   model.SalesUnknown,
		TrackingTools:  []string{},
		Competitors:    []string{},
	}
	if _, ok := present[model.PhaseIdentity]; ok {
		bi := out.Identity.BusinessIdentity
		s.BusinessName = bi.Name.Value
		s.Location = bi.Location.Value
		s.Category = bi.Category.Value
		s.TopOfferings = topOfferings(out.Identity, 3)
		s.ProofAssets = len(bi.ProofAssets)
	}
	if _, ok := present[model.PhasePresence]; ok {
		ep := out.Presence.ExternalPresence
		s.ProfilesFound = len(ep.Profiles)
		s.PresenceSource = out.Presence.DataSource
		s.Rating = presenceRating(out.Presence)
		if sd := ep.Sentiment; sd.Positive+sd.Neutral+sd.Negative > 0 {
			s.Sentiment = &sd
		}
	}
	if _, ok := present[model.PhaseMarketing]; ok {
		mc := out.Marketing.MarketingConversion
		s.TotalCTAs = mc.TotalCTAs
		s.SalesProcess = mc.SalesProcess
		if v := signals.TrackingVendors(mc.Tracking); v != nil {
			s.TrackingTools = v
		}
	}
	if _, ok := present[model.PhaseCompetitor]; ok {
		for _, comp := range out.Competitor.CompetitorLandscape.Competitors {
			s.Competitors = append(s.Competitors, comp.Name)
		}
	}
	return s
}

// lowConfidenceAreas lists present phases and key sub-fields whose
// confidence is below the threshold, plus phases that only estimated.
func (c *Consolidator) lowConfidenceAreas(out model.PhaseOutputs, present map[model.PhaseName]float64) []string {
	threshold := c.scoring.LowConfidenceThreshold
	areas := []string{}
	for _, phase := range model.Phases {
		conf, ok := present[phase]
		if !ok {
			continue
		}
		if conf < threshold {
			areas = append(areas, string(phase))
		}
		if artifactFor(out, phase).Meta().Mode == model.ModeEstimation {
			areas = append(areas, string(phase)+".estimated")
		}
	}
	if _, ok := present[model.PhaseIdentity]; ok {
		bi := out.Identity.BusinessIdentity
		for _, f := range []struct {
			name string
			fact model.Fact
		}{
			{"identity.name", bi.Name},
			{"identity.location", bi.Location},
			{"identity.category", bi.Category},
		} {
			if f.fact.Confidence < threshold {
				areas = append(areas, f.name)
			}
		}
	}
	if _, ok := present[model.PhaseMarketing]; ok {
		if out.Marketing.MarketingConversion.SalesProcessConfidence < threshold {
			areas = append(areas, "marketing_conversion.sales_process")
		}
	}
	return areas
}

// confidenceTable renders the per-phase breakdown as a markdown table.
func (c *Consolidator) confidenceTable(rep *model.Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Phase", "Status", "Confidence", "Weight"})
	for _, phase := range model.Phases {
		status := "missing"
		if a := artifactFor(rep.PhaseOutputs, phase); a != nil {
			status = string(a.Meta().ExtractionStatus)
		}
		t.AppendRow(table.Row{
			string(phase),
			status,
			fmt.Sprintf("%.2f", rep.PhaseConfidences[phase]),
			fmt.Sprintf("%.2f", c.scoring.Weights.Weight(phase)),
		})
	}
	t.AppendFooter(table.Row{"overall", string(rep.Status), fmt.Sprintf("%.4f", rep.OverallConfidence), ""})
	return "## Confidence Breakdown\n\n" + t.RenderMarkdown() + "\n"
}

func reportTitle(out model.PhaseOutputs) string {
	name := out.Identity.Name()
	if name == "" {
		name = "Unidentified business"
	}
	return "# Market Intelligence Report: " + name + "\n\n"
}

func placeholderMarkdown(missing []model.PhaseName) string {
	names := make([]string, len(missing))
	for i, p := range missing {
		names[i] = string(p)
	}
	return "## No data available\n\n" +
		"No phase produced usable data, so no narrative was generated.\n\n" +
		"Missing phases: " + strings.Join(names, ", ") + "\n"
}
