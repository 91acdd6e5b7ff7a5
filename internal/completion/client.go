// Package completion wraps the external chat-completion capability.
//
// A Client takes an ordered transcript and generation parameters and
// returns generated text. Implementations perform exactly one outbound call
// per invocation and never retry.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/hint-tutor/internal/domain"
)

var (
	// ErrTimeout is returned when the completion call exceeds its deadline.
	ErrTimeout = errors.New("completion: deadline exceeded")
	// ErrEmptyTranscript is returned when Complete is called without messages.
	ErrEmptyTranscript = errors.New("completion: empty transcript")
)

// Params are the generation parameters for a single call.
type Params struct {
	MaxTokens   int
	Temperature float32
}

// Client produces text for a transcript.
type Client interface {
	Complete(ctx context.Context, transcript []domain.Message, params Params) (string, error)
}

// Func adapts an ordinary function to the Client interface.
type Func func(ctx context.Context, transcript []domain.Message, params Params) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, transcript []domain.Message, params Params) (string, error) {
	return f(ctx, transcript, params)
}

// UpstreamError reports a failed or unusable completion response.
// Body is kept for server-side diagnostics only.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion upstream error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion upstream error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
