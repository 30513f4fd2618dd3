package model

// CTAType classifies a call to action.
type CTAType string

const (
	CTAForm      CTAType = "form"
	CTAButton    CTAType = "button"
	CTALink      CTAType = "link"
	CTAPhone     CTAType = "phone"
	CTAMessaging CTAType = "messaging_link"
	CTAEmail     CTAType = "email"
)

// ParseCTAType normalizes s, defaulting unknown values to a link.
func ParseCTAType(s string) CTAType {
	switch normalizeEnum(s) {
	case "form":
		return CTAForm
	case "button":
		return CTAButton
	case "phone", "tel", "call":
		return CTAPhone
	case "messaging_link", "messaging", "chat", "whatsapp", "sms":
		return CTAMessaging
	case "email", "mailto":
		return CTAEmail
	}
	return CTALink
}

// SalesProcess is the coarse classification of how the business sells.
type SalesProcess string

const (
	SalesSelfServe    SalesProcess = "self_serve"
	SalesConsultative SalesProcess = "consultative"
	SalesDemoLed      SalesProcess = "demo_led"
	SalesQuoteBased   SalesProcess = "quote_based"
	SalesAppointment  SalesProcess = "appointment_based"
	SalesEcommerce    SalesProcess = "ecommerce"
	SalesUnknown      SalesProcess = "unknown"
)

// ParseSalesProcess maps s onto the fixed enum. Unknown values become SalesUnknown.
func ParseSalesProcess(s string) SalesProcess {
	switch SalesProcess(normalizeEnum(s)) {
	case SalesSelfServe:
		return SalesSelfServe
	case SalesConsultative:
		return SalesConsultative
	case SalesDemoLed:
		return SalesDemoLed
	case SalesQuoteBased:
		return SalesQuoteBased
	case SalesAppointment, "appointment":
		return SalesAppointment
	case SalesEcommerce, "e_commerce":
		return SalesEcommerce
	}
	return SalesUnknown
}

// CTA is a call-to-action record.
type CTA struct {
	Type       CTAType    `json:"type"`
	Label      string     `json:"label"`
	Target     string     `json:"target,omitempty"`
	Placement  string     `json:"placement,omitempty"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// TrackingID is an analytics or ad-platform identifier found in the page.
type TrackingID struct {
	Vendor string `json:"vendor"`
	ID     string `json:"id"`
}

// TrackingStack groups the tracking identifiers found on the page.
type TrackingStack struct {
	Analytics   []TrackingID `json:"analytics"`
	AdPlatforms []TrackingID `json:"ad_platforms"`
}

// FormSummary describes a form and the semantic fields it collects.
type FormSummary struct {
	Action string   `json:"action,omitempty"`
	Fields []string `json:"fields"`
}

// EngagementStep is one step of the visitor engagement path.
type EngagementStep struct {
	Order       int     `json:"order"`
	Step        string  `json:"step"`
	Probability float64 `json:"probability"`
}

// ProductJourney maps the entry offer through upsells.
type ProductJourney struct {
	EntryOffer  string   `json:"entry_offer"`
	CoreProduct string   `json:"core_product"`
	Upsells     []string `json:"upsells"`
	CrossSells  []string `json:"cross_sells"`
	Confidence  float64  `json:"confidence"`
}

// MarketingConversion is the marketing and conversion phase payload.
type MarketingConversion struct {
	CTAs                   []CTA            `json:"ctas"`
	TotalCTAs              int              `json:"total_ctas"`
	Tracking               TrackingStack    `json:"tracking"`
	ChatWidgets            []string         `json:"chat_widgets"`
	BookingTools           []string         `json:"booking_tools"`
	Forms                  []FormSummary    `json:"forms"`
	EngagementPath         []EngagementStep `json:"engagement_path"`
	SalesProcess           SalesProcess     `json:"sales_process"`
	SalesProcessConfidence float64          `json:"sales_process_confidence"`
	ProductJourney         ProductJourney   `json:"product_journey"`
}

// MarketingArtifact is the output of the marketing and conversion phase.
type MarketingArtifact struct {
	ArtifactMeta
	MarketingConversion MarketingConversion `json:"marketing_conversion"`
}

// EmptyMarketing returns a well-formed marketing artifact with no facts.
func EmptyMarketing(meta ArtifactMeta) *MarketingArtifact {
	return &MarketingArtifact{
		ArtifactMeta: meta,
		MarketingConversion: MarketingConversion{
			CTAs:           []CTA{},
			Tracking:       TrackingStack{Analytics: []TrackingID{}, AdPlatforms: []TrackingID{}},
			ChatWidgets:    []string{},
			BookingTools:   []string{},
			Forms:          []FormSummary{},
			EngagementPath: []EngagementStep{},
			SalesProcess:   SalesUnknown,
			ProductJourney: ProductJourney{Upsells: []string{}, CrossSells: []string{}},
		},
	}
}
