// Package store provides session storage interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/hint-tutor/internal/domain"
)

// ErrNotFound is returned when no live session exists for an id.
var ErrNotFound = errors.New("session not found")

// Store defines the contract for holding live hint sessions.
//
// Mutate and Remove hold a per-session lock for the whole call, including
// whatever fn does, so overlapping writers on one id serialize. Get and Len
// never wait on a session lock.
type Store interface {
	// Create assigns a fresh id to the session, stores a private copy and
	// returns the id.
	Create(ctx context.Context, session *domain.Session) (string, error)

	// Get returns a copy of the committed session state.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Put replaces the committed state of an existing session.
	Put(ctx context.Context, session *domain.Session) error

	// Mutate runs fn against a private copy of the session while holding the
	// session lock. The copy is committed only if fn returns nil.
	Mutate(ctx context.Context, id string, fn func(*domain.Session) error) error

	// Remove runs fn against a copy of the session while holding the session
	// lock and deletes the session only if fn returns nil.
	Remove(ctx context.Context, id string, fn func(*domain.Session) error) error

	// Delete removes a session unconditionally.
	Delete(ctx context.Context, id string) error

	// ExpireIdle deletes sessions not updated since before and returns their
	// ids. Sessions with a writer in progress are skipped.
	ExpireIdle(ctx context.Context, before time.Time) []string

	// Len returns the number of live sessions.
	Len() int
}

// Archive records sessions that reached a solution.
type Archive interface {
	// Record stores the final transcript of a resolved session.
	Record(ctx context.Context, session *domain.Session, solution string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
