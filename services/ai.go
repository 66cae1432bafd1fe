package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"databoard/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// FallbackResponse is stored as the assistant turn when the model cannot be reached.
const FallbackResponse = "AI service is currently unavailable due to an error communicating with the AI model."

var (
	ErrAIUnavailable    = errors.New("AI service unavailable")
	ErrAIUnexpectedBody = errors.New("unexpected response format from AI")
)

type ChatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// AIConfig configures the Ollama-backed assistant.
type AIConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// consecutive failures before the breaker opens
	FailureThreshold uint32
	// how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// AIService talks to an Ollama server's /api/chat endpoint.
type AIService struct {
	client  *resty.Client
	model   string
	breaker *gobreaker.CircuitBreaker[string]
}

func NewAIService(cfg AIConfig) *AIService {
	if cfg.Model == "" {
		cfg.Model = "tinyllama"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ollama",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("AI circuit breaker state changed")
		},
	})

	log.Info().Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("AI service initialized")

	return &AIService{client: client, model: cfg.Model, breaker: breaker}
}

// BuildSystemPrompt describes the assistant's role and the user's workspace.
func BuildSystemPrompt(fileCount, chartCount int64) string {
	return fmt.Sprintf(`You are a BI (Business Intelligence) assistant. The user has:
- %d data files
- %d charts/dashboards

Provide concise, professional advice about:
1. Data visualization best practices
2. Dashboard design
3. Data analysis techniques
4. BI tool recommendations`, fileCount, chartCount)
}

// Chat sends the conversation to the model and returns the assistant reply.
// Transport failures, error statuses and an open breaker wrap ErrAIUnavailable.
func (s *AIService) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	reply, err := s.breaker.Execute(func() (string, error) {
		return s.chat(ctx, messages)
	})
	switch {
	case err == nil:
		metrics.AIRequests.WithLabelValues("ok").Inc()
		return reply, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.AIRequests.WithLabelValues("circuit_open").Inc()
		return "", fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	default:
		metrics.AIRequests.WithLabelValues("error").Inc()
		return "", err
	}
}

func (s *AIService) chat(ctx context.Context, messages []ChatMessage) (string, error) {
	var (
		result  ollamaChatResponse
		failure ollamaError
	)
	log.Debug().Str("model", s.model).Int("messages", len(messages)).Msg("Sending request to Ollama")

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(ollamaChatRequest{Model: s.model, Messages: messages, Stream: false}).
		SetResult(&result).
		SetError(&failure).
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAIUnavailable, err)
	}
	if resp.IsError() {
		detail := failure.Error
		if detail == "" {
			detail = resp.Status()
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrAIUnavailable, resp.StatusCode(), detail)
	}

	content := strings.TrimSpace(result.Message.Content)
	if content == "" {
		return "", ErrAIUnexpectedBody
	}
	return content, nil
}
