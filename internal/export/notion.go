package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/pkg/notion"
)

// Report database property names.
const (
	PropName       = "Name"
	PropURL        = "URL"
	PropStatus     = "Status"
	PropConfidence = "Confidence"
	PropMissing    = "Phases Missing"
	PropGenerated  = "Generated"
)

// NotionPublisher writes reports as pages of a Notion database. A report
// whose target URL already has a page updates that page's properties and
// replaces its body, so the page always shows the latest report.
type NotionPublisher struct {
	client notion.Client
	dbID   string
}

// NewNotionPublisher creates a publisher for the report database dbID.
func NewNotionPublisher(client notion.Client, dbID string) *NotionPublisher {
	return &NotionPublisher{client: client, dbID: dbID}
}

// Publish writes rep and returns the page id.
func (p *NotionPublisher) Publish(ctx context.Context, rep *model.Report) (string, error) {
	if rep == nil {
		return "", eris.New("export: nil report")
	}
	if p.dbID == "" {
		return "", eris.New("export: notion report database not configured")
	}

	props := reportProperties(rep)
	blocks := notion.MarkdownBlocks(rep.Markdown)

	var existing *notionapi.Page
	if isURL(rep.Target) {
		page, err := notion.FindByURL(ctx, p.client, p.dbID, PropURL, rep.Target)
		if err != nil {
			return "", eris.Wrap(err, "export: find report page")
		}
		existing = page
	}

	if existing != nil {
		pageID := string(existing.ID)
		if _, err := p.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", eris.Wrapf(err, "export: update report page %s", pageID)
		}
		removed, err := p.client.ClearChildren(ctx, pageID)
		if err != nil {
			return "", eris.Wrapf(err, "export: clear report page %s", pageID)
		}
		if err := p.client.AppendBlocks(ctx, pageID, blocks); err != nil {
			return "", eris.Wrapf(err, "export: append report to %s", pageID)
		}
		zap.L().Info("export: notion page updated",
			zap.String("page_id", pageID),
			zap.String("target", rep.Target),
			zap.Int("blocks_replaced", removed),
		)
		return pageID, nil
	}

	// The create call carries at most one batch of children; the rest are
	// appended.
	batches := notion.Batches(blocks, notion.MaxBlocksPerRequest)
	var first []notionapi.Block
	if len(batches) > 0 {
		first = batches[0]
	}
	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(p.dbID)},
		Properties: props,
		Children:   first,
	})
	if err != nil {
		return "", eris.Wrap(err, "export: create report page")
	}
	pageID := string(page.ID)
	for _, batch := range batches[min(1, len(batches)):] {
		if err := p.client.AppendBlocks(ctx, pageID, batch); err != nil {
			return "", eris.Wrapf(err, "export: append report to %s", pageID)
		}
	}
	zap.L().Info("export: notion page created", zap.String("page_id", pageID), zap.String("target", rep.Target))
	return pageID, nil
}

func reportProperties(rep *model.Report) notionapi.Properties {
	name := rep.Summary.BusinessName
	if name == "" {
		name = rep.Target
	}
	generated := notionapi.Date(rep.GeneratedAt)
	if rep.GeneratedAt.IsZero() {
		generated = notionapi.Date(time.Now())
	}

	props := notionapi.Properties{
		PropName:       notion.TitleProp(name),
		PropStatus:     notion.SelectProp(string(rep.Status)),
		PropConfidence: notion.NumberProp(rep.OverallConfidence),
		PropMissing:    notion.RichTextProp(joinPhases(rep.DataQuality.PhasesMissing)),
		PropGenerated: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &generated},
		},
	}
	if isURL(rep.Target) {
		props[PropURL] = notion.URLProp(rep.Target)
	}
	return props
}

func isURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// PageURL returns the notion.so link for a page id.
func PageURL(pageID string) string {
	return fmt.Sprintf("https://www.notion.so/%s", strings.ReplaceAll(pageID, "-", ""))
}
