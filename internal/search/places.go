package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/pkg/google"
)

// PanelSource is the knowledge-panel source name for Google Places.
const PanelSource = "google_places"

// PanelLookup finds a business snapshot for a name and location query.
type PanelLookup interface {
	Lookup(ctx context.Context, query string) (*model.KnowledgePanel, error)
}

// PlacesPanel builds knowledge panels from Google Places text search.
type PlacesPanel struct {
	client google.Client
}

// NewPlacesPanel wraps client.
func NewPlacesPanel(client google.Client) *PlacesPanel {
	return &PlacesPanel{client: client}
}

// Lookup returns the best matching place as a panel, or nil when nothing
// matched.
func (p *PlacesPanel) Lookup(ctx context.Context, query string) (*model.KnowledgePanel, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	resp, err := p.client.TextSearch(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "search: places %q", query)
	}
	if resp == nil || len(resp.Places) == 0 {
		return nil, nil
	}

	place, ok := pickPlace(resp.Places)
	if !ok {
		return nil, nil
	}
	panel := &model.KnowledgePanel{
		Title:       place.DisplayName.Text,
		Type:        place.PrimaryTypeDisplayName.Text,
		Website:     place.WebsiteURI,
		Description: place.EditorialSummary.Text,
		Address:     place.FormattedAddress,
		Phone:       place.NationalPhoneNumber,
		Rating:      place.Rating,
		ReviewCount: place.UserRatingCount,
		MapsURL:     place.GoogleMapsURI,
		Status:      place.BusinessStatus,
		Source:      PanelSource,
	}
	if panel.Type == "" && len(place.Types) > 0 {
		panel.Type = place.Types[0]
	}
	return panel, nil
}

// pickPlace returns the first named place that is still in business. A closed
// listing is only used when nothing else matched.
func pickPlace(places []google.Place) (google.Place, bool) {
	var closed *google.Place
	for i := range places {
		p := places[i]
		if p.DisplayName.Text == "" {
			continue
		}
		if !p.Closed() {
			return p, true
		}
		if closed == nil {
			closed = &places[i]
		}
	}
	if closed != nil {
		return *closed, true
	}
	return google.Place{}, false
}

// PanelFromGraph converts a search knowledge graph into a panel.
func PanelFromGraph(kg *model.KnowledgeGraph, source string) *model.KnowledgePanel {
	if kg == nil || kg.Title == "" {
		return nil
	}
	panel := &model.KnowledgePanel{
		Title:       kg.Title,
		Type:        kg.Type,
		Website:     kg.Website,
		Description: kg.Description,
		Rating:      kg.Rating,
		ReviewCount: kg.RatingCount,
		Source:      source,
	}
	for k, v := range kg.Attributes {
		switch strings.ToLower(k) {
		case "address":
			panel.Address = v
		case "phone":
			panel.Phone = v
		}
	}
	return panel
}
