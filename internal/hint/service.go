// Package hint implements the hint escalation state machine.
//
// A session moves from awaiting its first hint, through any number of
// advance cycles, to a terminal state in which it is removed from the store.
// Stored state is only changed after a completion call succeeds, and every
// write to one session runs under that session's lock.
package hint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/hint-tutor/internal/completion"
	"github.com/ashureev/hint-tutor/internal/config"
	"github.com/ashureev/hint-tutor/internal/domain"
	"github.com/ashureev/hint-tutor/internal/store"
)

// Output token budgets per operation.
const (
	firstHintMaxTokens = 200
	nextHintMaxTokens  = 250
	solutionMaxTokens  = 1024
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.7
	archiveTimeout     = 5 * time.Second
)

// Operation names used in logs and metrics.
const (
	OpBegin   = "begin"
	OpAdvance = "advance"
	OpResolve = "resolve"
)

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use.
type Observer interface {
	SessionStarted()
	HintDelivered(done bool)
	SessionResolved()
	CompletionFinished(op string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) SessionStarted()                                 {}
func (noopObserver) HintDelivered(bool)                              {}
func (noopObserver) SessionResolved()                                {}
func (noopObserver) CompletionFinished(string, time.Duration, error) {}

// Options configures a Service. Zero values select defaults.
type Options struct {
	HintCap     int
	Timeout     time.Duration
	Temperature *float32
	Archive     store.Archive
	Observer    Observer
	Logger      *slog.Logger
}

// Service runs hint sessions against a completion client and a session store.
type Service struct {
	client      completion.Client
	sessions    store.Store
	archive     store.Archive
	observer    Observer
	logger      *slog.Logger
	hintCap     int
	timeout     time.Duration
	temperature float32
}

// NewService creates a hint service.
func NewService(client completion.Client, sessions store.Store, opts Options) *Service {
	s := &Service{
		client:      client,
		sessions:    sessions,
		archive:     opts.Archive,
		observer:    opts.Observer,
		logger:      opts.Logger,
		hintCap:     opts.HintCap,
		timeout:     opts.Timeout,
		temperature: defaultTemperature,
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hintCap <= 0 {
		s.hintCap = config.DefaultHintCap
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if opts.Temperature != nil {
		s.temperature = *opts.Temperature
	}
	return s
}

// Begin starts a session for question and returns its id and first hint.
// Nothing is stored unless the completion call succeeds.
func (s *Service) Begin(ctx context.Context, question string) (string, string, error) {
	if strings.TrimSpace(question) == "" {
		return "", "", fmt.Errorf("%w: question is required", ErrValidation)
	}

	seed := []domain.Message{
		systemMessage(firstHintPolicy),
		firstHintRequest(question),
	}

	hint, err := s.complete(ctx, OpBegin, "", seed, firstHintMaxTokens)
	if err != nil {
		return "", "", err
	}

	session := &domain.Session{
		Question:   question,
		Transcript: append(seed, domain.Message{Role: domain.RoleAssistant, Content: hint}),
		HintCount:  1,
	}
	id, err := s.sessions.Create(ctx, session)
	if err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}

	s.observer.SessionStarted()
	s.logger.Info("Hint session started", "session_id", id, "question_length", len(question))
	return id, hint, nil
}

// Advance records the user's attempt, asks for the next hint and reports
// whether the session is done. A done session stays in the store until it
// is resolved.
func (s *Service) Advance(ctx context.Context, id, attempt string) (string, bool, error) {
	var hint string
	var done bool
	var hintCount int

	err := s.sessions.Mutate(ctx, id, func(session *domain.Session) error {
		session.Append(attemptMessage(attempt))

		out, err := s.complete(ctx, OpAdvance, id, withInstruction(nextHintPolicy, session.Transcript), nextHintMaxTokens)
		if err != nil {
			return err
		}

		session.Append(domain.Message{Role: domain.RoleAssistant, Content: out})
		session.HintCount++

		hint = out
		hintCount = session.HintCount
		done = s.isDone(out, session.HintCount)
		return nil
	})
	if err != nil {
		return "", false, classifyWait(err)
	}

	s.observer.HintDelivered(done)
	s.logger.Info("Hint delivered", "session_id", id, "hint_count", hintCount, "done", done)
	return hint, done, nil
}

// Resolve asks for the full solution and deletes the session on success.
// On failure the session is kept so the caller may retry.
func (s *Service) Resolve(ctx context.Context, id string) (string, error) {
	var solution string
	var final *domain.Session

	err := s.sessions.Remove(ctx, id, func(session *domain.Session) error {
		out, err := s.complete(ctx, OpResolve, id, withInstruction(solutionPolicy, session.Transcript), solutionMaxTokens)
		if err != nil {
			return err
		}
		solution = out
		final = session
		return nil
	})
	if err != nil {
		return "", classifyWait(err)
	}

	s.observer.SessionResolved()
	s.logger.Info("Hint session resolved", "session_id", id, "hint_count", final.HintCount)
	s.archiveResolved(ctx, final, solution)
	return solution, nil
}

// Inspect returns the original question and the content of the newest
// transcript entry.
func (s *Service) Inspect(ctx context.Context, id string) (string, string, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	last, _ := session.LastMessage()
	return session.Question, last.Content, nil
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.sessions.Len()
}

// isDone applies the termination heuristic: a case-insensitive sentinel
// substring anywhere in the hint, or more hints than the cap allows.
func (s *Service) isDone(hint string, hintCount int) bool {
	return strings.Contains(strings.ToLower(hint), strings.ToLower(DoneSentinel)) || hintCount > s.hintCap
}

// complete performs one deadline-bound completion call and classifies failures.
func (s *Service) complete(ctx context.Context, op, sessionID string, transcript []domain.Message, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.client.Complete(callCtx, transcript, completion.Params{
		MaxTokens:   maxTokens,
		Temperature: s.temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = &completion.UpstreamError{Err: errors.New("empty completion")}
	}
	if err != nil {
		if !errors.Is(err, completion.ErrTimeout) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", completion.ErrTimeout, err)
		}
		err = classifyCompletion(err)
		s.logCompletionFailure(op, sessionID, err)
	}

	s.observer.CompletionFinished(op, time.Since(start), err)
	return text, err
}

func (s *Service) logCompletionFailure(op, sessionID string, err error) {
	attrs := []any{"op", op, "kind", KindOf(err), "error", err}
	if sessionID != "" {
		attrs = append(attrs, "session_id", sessionID)
	}
	var upErr *completion.UpstreamError
	if errors.As(err, &upErr) {
		attrs = append(attrs, "upstream_status", upErr.StatusCode, "upstream_body", upErr.Body)
	}
	s.logger.Error("Completion failed", attrs...)
}

func (s *Service) archiveResolved(ctx context.Context, session *domain.Session, solution string) {
	if s.archive == nil || session == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if err := s.archive.Record(archiveCtx, session, solution); err != nil {
		s.logger.Warn("Failed to archive resolved session", "session_id", session.ID, "error", err)
	}
}
