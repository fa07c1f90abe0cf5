package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/elephantgerald/bartleby-sub001/internal/telemetry"
)

const (
	maxRetries     = 3
	initialBackoff = 2 * time.Second
	maxTokens      = 8192
)

// errAPIKeyRequired is returned when an API key is needed but not provided.
var errAPIKeyRequired = errors.New("API key required")

// AnthropicProvider implements Provider over the Anthropic Messages API.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	prompts *PromptBuilder
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider. Env var ANTHROPIC_API_KEY takes
// precedence over the explicit apiKey.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", errAPIKeyRequired)
	}

	prompts, err := NewPromptBuilder()
	if err != nil {
		return nil, err
	}

	aiMetricsOnce.Do(initAIMetrics)

	return &AnthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(model),
		prompts: prompts,
	}, nil
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/elephantgerald/bartleby-sub001/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("bartleby.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("bartleby.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("bartleby.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// ExecuteWork renders the prompts for the context's transformation, calls the
// Messages API with retry, and parses the model's JSON response. Token usage
// across all attempts is accumulated into the result.
func (p *AnthropicProvider) ExecuteWork(ctx context.Context, wc *WorkContext) (*WorkResult, error) {
	systemPrompt, err := p.prompts.BuildSystemPrompt(wc)
	if err != nil {
		return nil, err
	}
	userPrompt, err := p.prompts.BuildUserPrompt(wc)
	if err != nil {
		return nil, err
	}

	tracer := telemetry.Tracer("github.com/elephantgerald/bartleby-sub001/ai")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("bartleby.ai.model", string(p.model)),
		attribute.String("bartleby.ai.transformation", string(wc.Transformation)),
	)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	var tokensUsed int64
	attempts := 0

	operation := func() (*anthropic.Message, error) {
		attempts++
		t0 := time.Now()
		message, err := p.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err != nil {
			if !isRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		modelAttr := attribute.String("bartleby.ai.model", string(p.model))
		if aiMetrics.inputTokens != nil {
			aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
		}
		tokensUsed += message.Usage.InputTokens + message.Usage.OutputTokens
		return message, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	message, err := backoff.RetryWithData(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, maxRetries), ctx))

	span.SetAttributes(attribute.Int("bartleby.ai.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("anthropic call failed after %d attempts: %w", attempts, err)
	}

	span.SetAttributes(attribute.Int64("bartleby.ai.tokens_used", tokensUsed))

	text, err := textContent(message)
	if err != nil {
		return nil, err
	}

	result := ParseWorkResponse(text)
	result.TokensUsed = int(tokensUsed)
	return result, nil
}

// TestConnection verifies the API key with a minimal Messages call.
func (p *AnthropicProvider) TestConnection(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic connection test failed: %w", err)
	}
	return nil
}

// textContent extracts the text of the first content block.
func textContent(message *anthropic.Message) (string, error) {
	if len(message.Content) == 0 {
		return "", fmt.Errorf("unexpected response format: no content blocks")
	}
	content := message.Content[0]
	if content.Type != "text" {
		return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}
	return content.Text, nil
}

// isRetryable reports whether the call should be retried: rate limits (429)
// and server errors (5xx) are transient; auth failures and cancellation are
// not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		if statusCode == 429 || statusCode >= 500 {
			return true
		}
		return false
	}

	return false
}
