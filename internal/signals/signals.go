package signals

import (
	"github.com/sells-group/market-intel/internal/model"
)

// Signals is everything the deterministic scanners found on one page.
type Signals struct {
	Structured   Structured          `json:"structured"`
	Contacts     Contacts            `json:"contacts"`
	Tracking     model.TrackingStack `json:"tracking"`
	CTAs         []CTACandidate      `json:"ctas"`
	Forms        []model.FormSummary `json:"forms"`
	ChatWidgets  []string            `json:"chat_widgets"`
	BookingTools []string            `json:"booking_tools"`
}

// Scan runs every scanner over one page. When rawHTML is empty only the
// text-based contact scan and the domain-derived name apply.
func Scan(rawHTML, text, pageURL string) Signals {
	if text == "" && rawHTML != "" {
		text = HTMLToText(rawHTML)
	}
	return Signals{
		Structured:   ExtractStructured(rawHTML, pageURL),
		Contacts:     ExtractContacts(rawHTML, text),
		Tracking:     ScanTracking(rawHTML),
		CTAs:         ScanCTAs(rawHTML),
		Forms:        ScanForms(rawHTML),
		ChatWidgets:  DetectChatWidgets(rawHTML),
		BookingTools: DetectBookingTools(rawHTML),
	}
}

// Empty reports whether no scanner produced anything.
func (s Signals) Empty() bool {
	return s.Structured.Empty() &&
		len(s.Contacts.Emails) == 0 && len(s.Contacts.Phones) == 0 && len(s.Contacts.SocialLinks) == 0 &&
		TrackingCount(s.Tracking) == 0 && len(s.CTAs) == 0 && len(s.Forms) == 0 &&
		len(s.ChatWidgets) == 0 && len(s.BookingTools) == 0
}
