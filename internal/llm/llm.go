// Package llm provides the text completion service used for volume scoring and answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/rulebook/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// ErrNoChoices is returned when the model answers with no completion choices.
var ErrNoChoices = errors.New("llm returned no choices")

// Completer turns a prompt into completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAICompleter implements Completer against any OpenAI-compatible chat endpoint.
type OpenAICompleter struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAICompleter creates a completer from cfg. logger may be nil.
func NewOpenAICompleter(cfg config.LLMConfig, logger *zap.Logger) (*OpenAICompleter, error) {
	token := cfg.Token
	if token == "" {
		// local OpenAI-compatible services ignore the token but the client requires one
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return newCompleter(client, cfg, logger), nil
}

func newCompleter(client llms.Model, cfg config.LLMConfig, logger *zap.Logger) *OpenAICompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompleter{
		client:      client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Complete sends prompt as a single human message and returns the first choice's content.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	resp, err := c.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		c.logger.Error("llm completion failed", zap.Error(err))
		return "", fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	c.logger.Debug("llm completion", zap.Int("prompt_len", len(prompt)), zap.Int("response_len", len(text)))
	return text, nil
}
