package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HostedClient talks to a ModelsLab-style endpoint. The API key travels both
// in the "key" header and in the request body.
type HostedClient struct {
	http      *resty.Client
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
}

// HostedConfig configures a HostedClient.
type HostedConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewHostedClient builds a HostedClient.
func NewHostedClient(cfg HostedConfig) (*HostedClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("completion endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("key", cfg.APIKey).
		SetTimeout(cfg.Timeout)

	return &HostedClient{
		http:      client,
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

type hostedRequest struct {
	Key       string    `json:"key"`
	ModelID   string    `json:"model_id"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type hostedChoice struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Text string `json:"text"`
}

type hostedResponse struct {
	Choices  []hostedChoice `json:"choices"`
	Response string         `json:"response"`
	Status   string         `json:"status"`
	Message  string         `json:"message"`
}

// text probes choices[0].message.content, then choices[0].text, then the
// top-level response field.
func (r *hostedResponse) text() string {
	if len(r.Choices) > 0 {
		c := r.Choices[0]
		if c.Message != nil && strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content
		}
		if strings.TrimSpace(c.Text) != "" {
			return c.Text
		}
	}
	return r.Response
}

// Complete sends msgs and classifies the answer.
func (c *HostedClient) Complete(ctx context.Context, msgs []Message) Result {
	tracer := otel.Tracer("completion/hosted")
	ctx, span := tracer.Start(ctx, "Complete", trace.WithAttributes(
		attribute.String("completion.model", c.model),
		attribute.Int("completion.messages", len(msgs)),
	))
	defer span.End()

	var out hostedResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(hostedRequest{Key: c.apiKey, ModelID: c.model, Messages: msgs, MaxTokens: c.maxTokens}).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("endpoint", c.endpoint).Msg("completion request failed")
		return TransportError(fmt.Errorf("completion request: %w", err))
	}
	if resp.IsError() {
		log.Error().Int("statusCode", resp.StatusCode()).Str("responseBody", resp.String()).Msg("completion API returned an error")
		return TransportError(fmt.Errorf("completion API error: status %s", resp.Status()))
	}
	if strings.EqualFold(out.Status, "error") || strings.EqualFold(out.Status, "failed") {
		log.Error().Str("status", out.Status).Str("message", out.Message).Msg("completion API reported failure")
		return TransportError(fmt.Errorf("completion API %s: %s", out.Status, out.Message))
	}

	res := Ok(out.text())
	span.SetAttributes(attribute.String("completion.outcome", res.Outcome.String()))
	return res
}
