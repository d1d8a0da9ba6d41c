package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
)

// bedrockClaudeRequest is the Anthropic-on-Bedrock request envelope
// (anthropic_version + messages), distinct from the direct Anthropic API's
// request shape.
type bedrockClaudeRequest struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	Messages         []bedrockClaudeMessage `json:"messages"`
}

type bedrockClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockClaudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// BedrockModel calls a Claude model through Amazon Bedrock's InvokeModel
// API, the alternative hosting path to the direct Anthropic API.
type BedrockModel struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
}

// NewBedrockModel loads AWS credentials from the default chain (env,
// shared config, instance role) and builds a Bedrock runtime client.
func NewBedrockModel(ctx context.Context, modelID string, maxTokens int) (*BedrockModel, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockModel{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
	}, nil
}

func (m *BedrockModel) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(bedrockClaudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        m.maxTokens,
		Messages:         []bedrockClaudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal bedrock request: %w", err)
	}

	out, err := m.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", senerrors.Transient("complete", "bedrock", err)
	}

	var resp bedrockClaudeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", senerrors.Semantic("complete", "bedrock", fmt.Errorf("unmarshal bedrock response: %w", err))
	}
	if len(resp.Content) == 0 {
		return "", senerrors.Semantic("complete", "bedrock", fmt.Errorf("empty response content"))
	}

	var text string
	for _, c := range resp.Content {
		text += c.Text
	}
	return text, nil
}
