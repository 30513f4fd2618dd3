package llm

import (
	"context"
	"strings"
)

// Request is a provider-neutral single-turn completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int64
	JSON        bool
}

// Response is a provider-neutral completion.
type Response struct {
	Text             string
	Model            string
	FinishReason     string
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Provider executes completions for the models it supports.
type Provider interface {
	Name() string
	Supports(model string) bool
	Complete(ctx context.Context, req Request) (*Response, error)
}

// splitModel separates an explicit "provider:model" prefix.
func splitModel(name string) (provider, model string) {
	if i := strings.Index(name, ":"); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
