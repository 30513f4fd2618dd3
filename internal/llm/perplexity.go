package llm

import (
	"context"

	"github.com/sells-group/market-intel/pkg/perplexity"
)

// PerplexityProvider serves sonar* models.
type PerplexityProvider struct {
	client perplexity.Client
}

// NewPerplexityProvider wraps a Perplexity client.
func NewPerplexityProvider(client perplexity.Client) *PerplexityProvider {
	return &PerplexityProvider{client: client}
}

func (p *PerplexityProvider) Name() string { return "perplexity" }

func (p *PerplexityProvider) Supports(model string) bool {
	return hasAnyPrefix(model, "sonar")
}

func (p *PerplexityProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]perplexity.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	creq := perplexity.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = perplexity.JSONObject()
	}
	resp, err := p.client.ChatCompletion(ctx, creq)
	if err != nil {
		return nil, err
	}
	out := &Response{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	if len(resp.Choices) > 0 {
		out.FinishReason = resp.Choices[0].FinishReason
	}
	return out, nil
}
