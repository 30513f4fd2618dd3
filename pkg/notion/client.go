// Package notion wraps the Notion API for publishing report pages.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the slice of the Notion API the report publisher uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
	AppendBlocks(ctx context.Context, blockID string, blocks []notionapi.Block) error
	// ClearChildren deletes every child block of a page and returns how
	// many were removed.
	ClearChildren(ctx context.Context, pageID string) (int, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default limit of 3 requests per second. A
// non-positive value disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type notionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client for an integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call waits for a rate token, runs fn and wraps its error with op. Every
// API request goes through here so one limiter covers them all.
func (c *notionClient) call(ctx context.Context, op string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "notion: rate limit")
		}
	}
	if err := fn(); err != nil {
		return eris.Wrap(err, "notion: "+op)
	}
	return nil
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	var resp *notionapi.DatabaseQueryResponse
	err := c.call(ctx, "query database "+dbID, func() (err error) {
		resp, err = c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
		return err
	})
	return resp, err
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, "create page", func() (err error) {
		page, err = c.api.Page.Create(ctx, req)
		return err
	})
	return page, err
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, "update page "+pageID, func() (err error) {
		page, err = c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
	return page, err
}

// AppendBlocks appends children in batches of MaxBlocksPerRequest.
func (c *notionClient) AppendBlocks(ctx context.Context, blockID string, blocks []notionapi.Block) error {
	for _, batch := range Batches(blocks, MaxBlocksPerRequest) {
		err := c.call(ctx, "append blocks to "+blockID, func() error {
			_, err := c.api.Block.AppendChildren(ctx, notionapi.BlockID(blockID), &notionapi.AppendBlockChildrenRequest{
				Children: batch,
			})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *notionClient) ClearChildren(ctx context.Context, pageID string) (int, error) {
	var ids []notionapi.BlockID
	cursor := ""
	for {
		var resp *notionapi.GetChildrenResponse
		err := c.call(ctx, "list children of "+pageID, func() (err error) {
			resp, err = c.api.Block.GetChildren(ctx, notionapi.BlockID(pageID), &notionapi.Pagination{
				StartCursor: notionapi.Cursor(cursor),
				PageSize:    100,
			})
			return err
		})
		if err != nil {
			return 0, err
		}
		for _, b := range resp.Results {
			ids = append(ids, b.GetID())
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	for i, id := range ids {
		err := c.call(ctx, "delete block "+string(id), func() error {
			_, err := c.api.Block.Delete(ctx, id)
			return err
		})
		if err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
