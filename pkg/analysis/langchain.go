package analysis

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
)

// LangchainModel routes through langchaingo's provider-agnostic llms.Model,
// giving operators an OpenAI-compatible-endpoint escape hatch (e.g. a
// self-hosted model gateway) without the engine depending on any one SDK.
type LangchainModel struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

// NewLangchainModel builds an OpenAI-compatible backend pointed at baseURL
// (empty for the public OpenAI API).
func NewLangchainModel(apiKey, model, baseURL string, maxTokens int, temperature float32) (*LangchainModel, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &LangchainModel{llm: llm, temperature: float64(temperature), maxTokens: maxTokens}, nil
}

func (m *LangchainModel) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithTemperature(m.temperature),
		llms.WithMaxTokens(m.maxTokens),
	)
	if err != nil {
		return "", senerrors.Transient("complete", "langchain", err)
	}
	return text, nil
}
