package llm

import (
	"context"

	"github.com/sells-group/market-intel/pkg/anthropic"
)

// AnthropicProvider serves claude-* models.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider wraps an Anthropic client.
func NewAnthropicProvider(client anthropic.Client) *AnthropicProvider {
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Supports(model string) bool {
	return hasAnyPrefix(model, "claude")
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		CacheSystem: req.System != "",
		Temperature: req.Temperature,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:             resp.Text(),
		Model:            resp.Model,
		FinishReason:     resp.StopReason,
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
		CacheReadTokens:  resp.Usage.CacheReadInputTokens,
	}, nil
}
