package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/signals"
)

// bareValueConfidence applies when the model returned a fact as a plain
// string with no confidence.
const bareValueConfidence = 0.5

// genericSchemaTypes are JSON-LD types too broad to serve as a category.
var genericSchemaTypes = map[string]bool{
	"organization":  true,
	"localbusiness": true,
	"corporation":   true,
	"website":       true,
	"webpage":       true,
	"thing":         true,
}

// IdentityInput is what the identity phase reads.
type IdentityInput struct {
	URL         string
	HTML        string
	Text        string
	Description string
}

// IdentityAgent extracts name, location, category, offerings and proof.
type IdentityAgent struct {
	agent
}

// NewIdentityAgent creates an identity agent.
func NewIdentityAgent(client ModelClient, scoring config.ScoringConfig, opts ...AgentOption) *IdentityAgent {
	return &IdentityAgent{agent: newAgent(client, scoring, opts)}
}

// Extract runs the identity phase. It always returns a well-formed artifact.
func (a *IdentityAgent) Extract(ctx context.Context, in IdentityInput) *model.IdentityArtifact {
	art, err := a.extract(ctx, in)
	if err != nil {
		return model.EmptyIdentity(a.failed(model.PhaseIdentity, err))
	}
	return art
}

type evidenceResponse struct {
	SourceURL string `json:"source_url"`
	Selector  string `json:"selector"`
}

type factResponse struct {
	Value      string             `json:"value"`
	Confidence float64            `json:"confidence"`
	Evidence   []evidenceResponse `json:"evidence"`
}

// UnmarshalJSON accepts either a fact object or a bare string value.
func (f *factResponse) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = factResponse{Value: s}
		if strings.TrimSpace(s) != "" {
			f.Confidence = bareValueConfidence
		}
		return nil
	}
	type plain factResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = factResponse(p)
	return nil
}

func (f factResponse) fact(pageURL string) model.Fact {
	out := model.Fact{
		Value:      strings.TrimSpace(f.Value),
		Confidence: model.Clamp01(f.Confidence),
		Evidence:   []model.Evidence{},
	}
	if out.Value == "" {
		out.Confidence = 0
		return out
	}
	for _, e := range f.Evidence {
		src := e.SourceURL
		if src == "" {
			src = pageURL
		}
		out.Evidence = append(out.Evidence, model.Evidence{
			SourceURL:  src,
			Selector:   e.Selector,
			Method:     model.MethodModel,
			Confidence: out.Confidence,
		})
	}
	return out
}

type offeringResponse struct {
	Rank        int     `json:"rank"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type proofResponse struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	SourceURL   string  `json:"source_url"`
	Confidence  float64 `json:"confidence"`
}

type packageResponse struct {
	Name       string   `json:"name"`
	PriceHint  string   `json:"price_hint"`
	Includes   []string `json:"includes"`
	Confidence float64  `json:"confidence"`
}

type identityResponse struct {
	Name        factResponse       `json:"name"`
	Location    factResponse       `json:"location"`
	Category    factResponse       `json:"category"`
	Offerings   []offeringResponse `json:"offerings"`
	ProofAssets []proofResponse    `json:"proof_assets"`
	Packages    []packageResponse  `json:"packages"`
}

func (a *IdentityAgent) extract(ctx context.Context, in IdentityInput) (*model.IdentityArtifact, error) {
	meta := a.meta(model.PhaseIdentity)
	mode := selectMode(in.HTML, in.Text, in.Description)
	if mode == model.ModeNone {
		return model.EmptyIdentity(meta), nil
	}
	meta.Mode = mode
	meta.DataSource = sourceFor(mode)

	var sig signals.Signals
	var text string
	system := identityEstimateSystemPrompt
	if mode == model.ModeRich {
		text = pageText(in.HTML, in.Text)
		sig = signals.Scan(in.HTML, text, in.URL)
		system = identitySystemPrompt
	}

	var resp identityResponse
	res, err := a.ask(ctx, model.PhaseIdentity, a.prompt(in, mode, sig, text), system, &resp)
	if err != nil {
		return nil, &PhaseError{Phase: model.PhaseIdentity, Mode: mode, DataSource: meta.DataSource, Err: err}
	}

	art := model.EmptyIdentity(meta)
	stamp(&art.ArtifactMeta, res)

	bi := &art.BusinessIdentity
	bi.Name = resp.Name.fact(in.URL)
	bi.Location = resp.Location.fact(in.URL)
	bi.Category = resp.Category.fact(in.URL)
	bi.Offerings = rankOfferings(resp.Offerings)
	bi.ProofAssets = normalizeProof(resp.ProofAssets)
	bi.Packages = normalizePackages(resp.Packages)

	if mode == model.ModeRich {
		a.reconcile(bi, sig.Structured, in.URL)
		bi.Contact = contactInfo(sig)
	}
	if mode == model.ModeEstimation {
		a.discountIdentity(bi)
	}

	if hasIdentityFacts(bi) {
		art.ExtractionStatus = model.ExtractionComplete
		art.OverallConfidence = a.confidence(bi, mode)
	}
	return art, nil
}

func (a *IdentityAgent) prompt(in IdentityInput, mode model.Mode, sig signals.Signals, text string) string {
	var b strings.Builder
	if in.URL != "" {
		fmt.Fprintf(&b, "Website: %s\n", in.URL)
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		fmt.Fprintf(&b, "Business description: %s\n", d)
	}
	if mode != model.ModeRich {
		return b.String()
	}

	st := sig.Structured
	b.WriteString("\nDeterministic signals found on the page:\n")
	writeSignal(&b, "Structured name", st.Name+sourceSuffix(st.NameSource))
	writeSignal(&b, "Structured type", st.Type)
	writeSignal(&b, "Structured location", st.Location())
	writeSignal(&b, "Page title", st.Title)
	writeSignal(&b, "Meta description", st.MetaDescription)
	writeSignal(&b, "Emails", strings.Join(sig.Contacts.Emails, ", "))
	writeSignal(&b, "Phones", strings.Join(sig.Contacts.Phones, ", "))
	writeSignal(&b, "Social profiles", strings.Join(sig.Contacts.SocialLinks, ", "))

	if ex := excerpts(text, a.maxContent); ex != "" {
		b.WriteString("\nPage content:\n")
		b.WriteString(ex)
		b.WriteString("\n")
	}
	return b.String()
}

func writeSignal(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func sourceSuffix(source string) string {
	if source == "" {
		return ""
	}
	return " (" + source + ")"
}

// reconcile corroborates model facts with structured data and fills facts
// the model missed.
func (a *IdentityAgent) reconcile(bi *model.BusinessIdentity, st signals.Structured, pageURL string) {
	if st.Name != "" {
		ev := nameEvidence(st, pageURL)
		switch {
		case !bi.Name.Known():
			conf := structuredNameConfidence
			if st.NameSource == signals.SourceDomain {
				conf = domainNameConfidence
			}
			bi.Name = model.Fact{Value: st.Name, Confidence: conf, Evidence: []model.Evidence{ev}}
		case st.NameSource != signals.SourceDomain && a.similar(bi.Name.Value, st.Name):
			bi.Name.Confidence = a.bonus(bi.Name.Confidence)
			bi.Name.Evidence = append(bi.Name.Evidence, ev)
		}
	}

	if loc := st.Location(); loc != "" {
		ev := jsonLDEvidence(pageURL)
		switch {
		case !bi.Location.Known():
			bi.Location = model.Fact{Value: loc, Confidence: structuredNameConfidence, Evidence: []model.Evidence{ev}}
		case a.similar(bi.Location.Value, loc) || a.similar(bi.Location.Value, st.City):
			bi.Location.Confidence = a.bonus(bi.Location.Confidence)
			bi.Location.Evidence = append(bi.Location.Evidence, ev)
		}
	}

	if t := st.Type; t != "" && !genericSchemaTypes[strings.ToLower(t)] {
		ev := jsonLDEvidence(pageURL)
		switch {
		case !bi.Category.Known():
			bi.Category = model.Fact{Value: t, Confidence: structuredNameConfidence, Evidence: []model.Evidence{ev}}
		case a.similar(bi.Category.Value, t):
			bi.Category.Confidence = a.bonus(bi.Category.Confidence)
			bi.Category.Evidence = append(bi.Category.Evidence, ev)
		}
	}
}

func jsonLDEvidence(pageURL string) model.Evidence {
	return model.Evidence{
		SourceURL:  pageURL,
		Selector:   `script[type="application/ld+json"]`,
		Method:     model.MethodStructuredData,
		Confidence: 1,
	}
}

func nameEvidence(st signals.Structured, pageURL string) model.Evidence {
	switch st.NameSource {
	case signals.SourceJSONLD:
		return jsonLDEvidence(pageURL)
	case signals.SourceOGSiteName:
		return model.Evidence{SourceURL: pageURL, Selector: `meta[property="og:site_name"]`, Method: model.MethodMetaTag, Confidence: 0.8}
	case signals.SourceOGTitle:
		return model.Evidence{SourceURL: pageURL, Selector: `meta[property="og:title"]`, Method: model.MethodMetaTag, Confidence: 0.7}
	case signals.SourceTitle:
		return model.Evidence{SourceURL: pageURL, Selector: "title", Method: model.MethodMetaTag, Confidence: 0.6}
	}
	return model.Evidence{SourceURL: pageURL, Method: model.MethodPattern, Confidence: domainNameConfidence}
}

func contactInfo(sig signals.Signals) model.ContactInfo {
	emails := append([]string{}, sig.Contacts.Emails...)
	if e := strings.ToLower(strings.TrimSpace(sig.Structured.Email)); e != "" {
		emails = append(emails, strings.TrimPrefix(e, "mailto:"))
	}
	phones := append([]string{}, sig.Contacts.Phones...)
	if p := signals.NormalizePhone(sig.Structured.Telephone); p != "" {
		phones = append(phones, p)
	}
	social := append([]string{}, sig.Contacts.SocialLinks...)
	for _, s := range sig.Structured.SameAs {
		if _, ok := signals.SocialPlatform(s); ok {
			social = append(social, s)
		}
	}

	ci := model.ContactInfo{
		Emails:      cleanStrings(emails),
		Phones:      cleanStrings(phones),
		SocialLinks: cleanStrings(social),
	}
	sort.Strings(ci.Emails)
	sort.Strings(ci.Phones)
	sort.Strings(ci.SocialLinks)
	return ci
}

// rankOfferings drops unnamed and duplicate offerings and renumbers the rest
// 1..n, keeping the model's order where it gave ranks.
func rankOfferings(in []offeringResponse) []model.Offering {
	kept := make([]offeringResponse, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, o := range in {
		o.Name = strings.TrimSpace(o.Name)
		key := strings.ToLower(o.Name)
		if o.Name == "" || seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, o)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		ri, rj := kept[i].Rank, kept[j].Rank
		if ri <= 0 || rj <= 0 {
			return ri > 0 && rj <= 0
		}
		return ri < rj
	})

	out := make([]model.Offering, 0, len(kept))
	for i, o := range kept {
		out = append(out, model.Offering{
			Rank:        i + 1,
			Name:        o.Name,
			Description: strings.TrimSpace(o.Description),
			Confidence:  model.Clamp01(o.Confidence),
		})
	}
	return out
}

// normalizeProof keeps proof assets of a known type only.
func normalizeProof(in []proofResponse) []model.ProofAsset {
	out := make([]model.ProofAsset, 0, len(in))
	for _, p := range in {
		pt, ok := model.ParseProofType(p.Type)
		if !ok {
			continue
		}
		out = append(out, model.ProofAsset{
			Type:        pt,
			Description: strings.TrimSpace(p.Description),
			SourceURL:   strings.TrimSpace(p.SourceURL),
			Confidence:  model.Clamp01(p.Confidence),
		})
	}
	return out
}

func normalizePackages(in []packageResponse) []model.OfferPackage {
	out := make([]model.OfferPackage, 0, len(in))
	for _, p := range in {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		out = append(out, model.OfferPackage{
			Name:       name,
			PriceHint:  strings.TrimSpace(p.PriceHint),
			Includes:   cleanStrings(p.Includes),
			Confidence: model.Clamp01(p.Confidence),
		})
	}
	return out
}

func (a *IdentityAgent) discountIdentity(bi *model.BusinessIdentity) {
	for _, f := range []*model.Fact{&bi.Name, &bi.Location, &bi.Category} {
		f.Confidence = a.discount(model.ModeEstimation, f.Confidence)
	}
	for i := range bi.Offerings {
		bi.Offerings[i].Confidence = a.discount(model.ModeEstimation, bi.Offerings[i].Confidence)
	}
	for i := range bi.ProofAssets {
		bi.ProofAssets[i].Confidence = a.discount(model.ModeEstimation, bi.ProofAssets[i].Confidence)
	}
	for i := range bi.Packages {
		bi.Packages[i].Confidence = a.discount(model.ModeEstimation, bi.Packages[i].Confidence)
	}
}

func hasIdentityFacts(bi *model.BusinessIdentity) bool {
	return bi.Name.Known() || bi.Location.Known() || bi.Category.Known() ||
		len(bi.Offerings) > 0 || len(bi.ProofAssets) > 0 || len(bi.Packages) > 0
}

// confidence is the weighted mean of name, location, category and the mean
// offering confidence, with a standing pseudo-fact when proof assets exist.
func (a *IdentityAgent) confidence(bi *model.BusinessIdentity, mode model.Mode) float64 {
	nameWeight := a.scoring.NameWeight
	if nameWeight <= 0 {
		nameWeight = 1
	}
	sum := bi.Name.Confidence*nameWeight + bi.Location.Confidence + bi.Category.Confidence
	weight := nameWeight + 2

	if len(bi.Offerings) > 0 {
		confs := make([]float64, len(bi.Offerings))
		for i, o := range bi.Offerings {
			confs[i] = o.Confidence
		}
		sum += mean(confs)
		weight++
	}
	if len(bi.ProofAssets) > 0 {
		sum += a.discount(mode, a.scoring.ProofAssetBonus)
		weight++
	}
	return model.Clamp01(sum / weight)
}
