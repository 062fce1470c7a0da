package completion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// OpenAIConfig configures an OpenAIClient. BaseURL may be empty for the
// public OpenAI API.
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewOpenAIClient builds an OpenAIClient.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Complete sends msgs and classifies the answer.
func (c *OpenAIClient) Complete(ctx context.Context, msgs []Message) Result {
	tracer := otel.Tracer("completion/openai")
	ctx, span := tracer.Start(ctx, "Complete", trace.WithAttributes(
		attribute.String("completion.model", c.model),
		attribute.Int("completion.messages", len(msgs)),
	))
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openaiRole(m.Role), Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", c.model).Msg("openai completion failed")
		return TransportError(fmt.Errorf("openai completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return NoContent()
	}
	res := Ok(resp.Choices[0].Message.Content)
	span.SetAttributes(attribute.String("completion.outcome", res.Outcome.String()))
	return res
}

func openaiRole(r string) string {
	switch strings.ToLower(r) {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
