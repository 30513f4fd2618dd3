package scrape

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Nil scrapers are skipped.
func NewChain(scrapers ...Scraper) *Chain {
	c := &Chain{}
	for _, s := range scrapers {
		if s != nil {
			c.scrapers = append(c.scrapers, s)
		}
	}
	return c
}

// Len returns the number of scrapers in the chain.
func (c *Chain) Len() int { return len(c.scrapers) }

// Scrape tries each scraper in order for a single URL.
// Returns the first successful result, or an error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		page, err := s.Scrape(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			fields := []zap.Field{
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			}
			var be *BlockedError
			if errors.As(err, &be) {
				fields = append(fields, zap.String("block", string(be.Block)))
			}
			zap.L().Debug("scrape: scraper failed, trying next", fields...)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
