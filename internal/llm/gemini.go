package llm

import (
	"context"

	"github.com/sells-group/market-intel/pkg/gemini"
)

// GeminiProvider serves gemini-* models.
type GeminiProvider struct {
	client gemini.Client
}

// NewGeminiProvider wraps a Gemini client.
func NewGeminiProvider(client gemini.Client) *GeminiProvider {
	return &GeminiProvider{client: client}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Supports(model string) bool {
	return hasAnyPrefix(model, "gemini")
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.Generate(ctx, gemini.GenerateRequest{
		Model:        req.Model,
		System:       req.System,
		Prompt:       req.Prompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		ResponseJSON: req.JSON,
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:         resp.Text,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
