package model

// ProofType classifies a proof asset.
type ProofType string

const (
	ProofTestimonial   ProofType = "testimonial"
	ProofCaseStudy     ProofType = "case_study"
	ProofAward         ProofType = "award"
	ProofCertification ProofType = "certification"
)

// ParseProofType normalizes s. ok is false for anything outside the known types.
func ParseProofType(s string) (ProofType, bool) {
	switch normalizeEnum(s) {
	case "testimonial", "review", "testimonials":
		return ProofTestimonial, true
	case "case_study", "casestudy", "case_studies":
		return ProofCaseStudy, true
	case "award", "awards":
		return ProofAward, true
	case "certification", "cert", "certifications", "accreditation":
		return ProofCertification, true
	}
	return "", false
}

// Offering is a product or service line, ranked by prominence.
type Offering struct {
	Rank        int     `json:"rank"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ProofAsset is social proof published by the business.
type ProofAsset struct {
	Type        ProofType `json:"type"`
	Description string    `json:"description"`
	SourceURL   string    `json:"source_url,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// OfferPackage describes a packaged offer or pricing tier.
type OfferPackage struct {
	Name       string   `json:"name"`
	PriceHint  string   `json:"price_hint,omitempty"`
	Includes   []string `json:"includes"`
	Confidence float64  `json:"confidence"`
}

// ContactInfo holds deterministically extracted contact points.
type ContactInfo struct {
	Emails      []string `json:"emails"`
	Phones      []string `json:"phones"`
	SocialLinks []string `json:"social_links"`
}

// BusinessIdentity is the identity phase payload.
type BusinessIdentity struct {
	Name        Fact           `json:"name"`
	Location    Fact           `json:"location"`
	Category    Fact           `json:"category"`
	Offerings   []Offering     `json:"offerings"`
	ProofAssets []ProofAsset   `json:"proof_assets"`
	Packages    []OfferPackage `json:"packages"`
	Contact     ContactInfo    `json:"contact"`
}

// IdentityArtifact is the output of the identity phase.
type IdentityArtifact struct {
	ArtifactMeta
	BusinessIdentity BusinessIdentity `json:"business_identity"`
}

// EmptyIdentity returns a well-formed identity artifact with no facts.
func EmptyIdentity(meta ArtifactMeta) *IdentityArtifact {
	return &IdentityArtifact{
		ArtifactMeta: meta,
		BusinessIdentity: BusinessIdentity{
			Name:        Fact{Evidence: []Evidence{}},
			Location:    Fact{Evidence: []Evidence{}},
			Category:    Fact{Evidence: []Evidence{}},
			Offerings:   []Offering{},
			ProofAssets: []ProofAsset{},
			Packages:    []OfferPackage{},
			Contact: ContactInfo{
				Emails:      []string{},
				Phones:      []string{},
				SocialLinks: []string{},
			},
		},
	}
}

// Name returns the business name, or "" for a nil artifact.
func (a *IdentityArtifact) Name() string {
	if a == nil {
		return ""
	}
	return a.BusinessIdentity.Name.Value
}
