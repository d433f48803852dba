package assistant

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// CompletionBackend answers with the chat completions endpoint. It keeps no
// remote state, so replies carry no continuation id.
type CompletionBackend struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float64
	systemPrompt string
	logger       *zap.Logger
}

func NewCompletionBackend(client *openai.Client, cfg Config, logger *zap.Logger) *CompletionBackend {
	cfg = cfg.withDefaults()
	return &CompletionBackend{
		client:       client,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
	}
}

func (b *CompletionBackend) Complete(ctx context.Context, prompt, previousID string) (Reply, error) {
	resp, err := b.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: b.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: b.systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   b.maxTokens,
			Temperature: float32(b.temperature),
		},
	)
	if err != nil {
		return Reply{}, err
	}

	if len(resp.Choices) == 0 {
		b.logger.Warn("Chat completion returned no choices", zap.String("model", b.model))
		return Reply{}, nil
	}
	return Reply{Content: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}
