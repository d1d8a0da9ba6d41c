package analysis

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
)

// AnthropicModel calls the Claude Messages API. The specific provider
// behavior is explicitly out of scope (spec.md §1) — this backend exists to
// exercise the Model interface with a concrete, corpus-grounded client.
type AnthropicModel struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicModel builds a backend from an API key and model name (e.g.
// "claude-sonnet-4-5").
func NewAnthropicModel(apiKey, model string, maxTokens int, temperature float32) *AnthropicModel {
	return &AnthropicModel{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

func (m *AnthropicModel) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", senerrors.Transient("complete", "anthropic", err)
	}
	if len(resp.Content) == 0 {
		return "", senerrors.Semantic("complete", "anthropic", fmt.Errorf("empty response content"))
	}

	var text string
	for _, block := range resp.Content {
		text += block.Text
	}
	return text, nil
}
