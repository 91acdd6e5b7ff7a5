package hint

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/hint-tutor/internal/completion"
	"github.com/ashureev/hint-tutor/internal/store"
)

var (
	// ErrValidation reports bad or missing input.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound reports an unknown or already resolved session.
	ErrNotFound = store.ErrNotFound
	// ErrUpstream reports a failed or unusable completion call.
	ErrUpstream = errors.New("completion failed")
	// ErrTimeout reports a completion call that exceeded its deadline.
	ErrTimeout = errors.New("completion timed out")
)

// Kind names an error class for logs and metrics.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}

// classifyCompletion maps a completion client error onto the service taxonomy
// while keeping the original error in the chain.
func classifyCompletion(err error) error {
	var upErr *completion.UpstreamError
	switch {
	case errors.Is(err, completion.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.As(err, &upErr):
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	default:
		return err
	}
}

// classifyWait reports a deadline that expired while the caller was queued
// behind another writer of the same session as a timeout.
func classifyWait(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
