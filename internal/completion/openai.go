package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/hint-tutor/internal/domain"
	"github.com/sashabaranov/go-openai"
)

const chatCompletionsSuffix = "/chat/completions"

// maxBodyLog bounds how much of an upstream error body is retained.
const maxBodyLog = 2048

// OpenAIConfig configures an OpenAI-compatible chat-completion client.
type OpenAIConfig struct {
	// APIURL is the full chat-completions endpoint, for example
	// https://api.openai.com/v1/chat/completions.
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAI calls an OpenAI-compatible chat-completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates a client for the configured endpoint.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("completion: model cannot be empty")
	}
	baseURL, err := BaseURL(cfg.APIURL)
	if err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = baseURL
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger.Info("Initializing completion client", "base_url", baseURL, "model", cfg.Model)
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// BaseURL converts a full chat-completions endpoint into the API base URL
// the OpenAI client expects. URLs without the suffix are used as-is.
func BaseURL(apiURL string) (string, error) {
	u := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if u == "" {
		return "", fmt.Errorf("completion: api url cannot be empty")
	}
	return strings.TrimSuffix(u, chatCompletionsSuffix), nil
}

// Complete sends the transcript and returns the first choice's content.
func (o *OpenAI) Complete(ctx context.Context, transcript []domain.Message, params Params) (string, error) {
	if len(transcript) == 0 {
		return "", ErrEmptyTranscript
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(transcript),
		MaxTokens:   params.MaxTokens,
		Temperature: wireTemperature(params.Temperature),
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", o.translateError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		o.logger.Warn("Completion returned no choices", "model", o.model)
		return "", &UpstreamError{StatusCode: http.StatusOK, Err: errors.New("no choices returned")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		o.logger.Warn("Completion returned empty content", "model", o.model, "finish_reason", resp.Choices[0].FinishReason)
		return "", &UpstreamError{StatusCode: http.StatusOK, Err: errors.New("no content returned")}
	}

	o.logger.Debug("Completion received",
		"model", o.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start),
	)
	return content, nil
}

func (o *OpenAI) translateError(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		o.logger.Error("Completion call timed out", "model", o.model, "error", err)
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		o.logger.Error("Completion API error",
			"model", o.model,
			"status", apiErr.HTTPStatusCode,
			"type", apiErr.Type,
			"message", apiErr.Message,
		)
		return &UpstreamError{
			StatusCode: apiErr.HTTPStatusCode,
			Body:       truncate(apiErr.Message, maxBodyLog),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		o.logger.Error("Completion request error",
			"model", o.model,
			"status", reqErr.HTTPStatusCode,
			"error", reqErr.Err,
		)
		body := ""
		if reqErr.Err != nil {
			body = truncate(reqErr.Err.Error(), maxBodyLog)
		}
		return &UpstreamError{
			StatusCode: reqErr.HTTPStatusCode,
			Body:       body,
			Err:        err,
		}
	}

	o.logger.Error("Completion call failed", "model", o.model, "error", err)
	return &UpstreamError{Err: err}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// wireTemperature keeps a zero temperature on the wire. go-openai drops a
// zero Temperature via omitempty, and the upstream would apply its own default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func toOpenAIMessages(transcript []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
