package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"docatlas/internal/faults"
	"docatlas/internal/logger"
)

// generateTimeout bounds a single generative call. Page extraction of large
// PDFs is the slowest caller.
const generateTimeout = 300 * time.Second

// GeminiClient wraps the generative model with a circuit breaker and a
// client-side rate limiter. It is shared process-wide and safe for
// concurrent use.
type GeminiClient struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// Stay under the provider's per-minute request ceiling with some buffer.
	rateLimiter := rate.NewLimiter(rate.Limit(10*0.9/60.0), 2)

	return &GeminiClient{
		client:      client,
		model:       model,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

// GenerateText runs one generative call over the given parts and returns the
// concatenated text of the first candidate. Failures classify as Transient
// when the breaker is closed (the producer retries per its own policy) and
// Upstream when the breaker is open.
func (gc *GeminiClient) GenerateText(ctx context.Context, parts ...genai.Part) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.parts", len(parts)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", faults.Wrap(faults.Transient, "ai.GenerateText", err)
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.2)

		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", faults.Wrap(faults.Upstream, "ai.GenerateText", err)
		}
		return "", faults.Wrap(faults.Transient, "ai.GenerateText", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	text := extractTextFromResponse(resp)
	if text == "" {
		return "", faults.New(faults.Transient, "ai.GenerateText", "model returned no text candidates")
	}

	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("gemini.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
	}
	return text, nil
}

// GenerateWithContext answers a prompt grounded in the given context chunks.
func (gc *GeminiClient) GenerateWithContext(ctx context.Context, prompt string, contextChunks []string) (string, error) {
	return gc.GenerateText(ctx, genai.Text(buildPromptWithContext(prompt, contextChunks)))
}

func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}

// extractTextFromResponse concatenates the text parts of the first candidate.
func extractTextFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
		break
	}
	return out
}

// buildPromptWithContext numbers the context chunks ahead of the question.
func buildPromptWithContext(prompt string, contextChunks []string) string {
	if len(contextChunks) == 0 {
		return prompt
	}
	contextStr := ""
	for i, chunk := range contextChunks {
		contextStr += fmt.Sprintf("Context %d:\n%s\n\n", i+1, chunk)
	}
	return fmt.Sprintf("Based on the following context:\n\n%s\n\nPlease answer this question: %s", contextStr, prompt)
}
