package model

import (
	"strings"
)

// Input is the request for one pipeline run.
type Input struct {
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	HTML        string `json:"html,omitempty"`
	TextContent string `json:"text_content,omitempty"`

	// Prefetched collaborator data. Nil means "look it up".
	PresenceResults []SearchResponse `json:"presence_results,omitempty"`
	SearchResults   []SearchResponse `json:"search_results,omitempty"`

	Keywords []string `json:"keywords,omitempty"`
}

// HasContent reports whether page HTML or text was supplied.
func (in Input) HasContent() bool {
	return strings.TrimSpace(in.HTML) != "" || strings.TrimSpace(in.TextContent) != ""
}

// Usable reports whether the input names any target at all.
func (in Input) Usable() bool {
	return strings.TrimSpace(in.URL) != "" || strings.TrimSpace(in.Description) != "" || in.HasContent()
}

// Target returns the best human-readable identifier of the run target.
func (in Input) Target() string {
	if u := strings.TrimSpace(in.URL); u != "" {
		return u
	}
	d := strings.TrimSpace(in.Description)
	if len(d) > 80 {
		d = d[:80]
	}
	return d
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return s
}
