package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/hint-tutor/internal/domain"
	"github.com/google/uuid"
)

// entry pairs a session with the lock that serializes its writers.
// session is guarded by Memory.mu; the write lock is held across
// Mutate/Remove. It is a one-slot channel so waiters can give up when their
// context ends.
type entry struct {
	writeLock chan struct{}
	session   *domain.Session
}

func newEntry(s *domain.Session) *entry {
	return &entry{writeLock: make(chan struct{}, 1), session: s}
}

func (e *entry) lock(ctx context.Context) error {
	select {
	case e.writeLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) tryLock() bool {
	select {
	case e.writeLock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *entry) unlock() {
	<-e.writeLock
}

// Memory implements Store with an in-process map.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
	newID   func() string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Create stores a copy of session under a new random id.
func (m *Memory) Create(_ context.Context, session *domain.Session) (string, error) {
	if session == nil {
		return "", fmt.Errorf("create session: nil session")
	}

	s := session.Clone()
	now := m.now()
	s.CreatedAt = now
	s.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	for _, exists := m.entries[id]; exists; _, exists = m.entries[id] {
		slog.Warn("Session id collision, regenerating", "session_id", id)
		id = m.newID()
	}
	s.ID = id
	m.entries[id] = newEntry(s)
	return id, nil
}

// Get returns a copy of the committed session.
func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.session.Clone(), nil
}

// Put replaces the committed state of an existing session.
func (m *Memory) Put(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return fmt.Errorf("put session: nil session")
	}
	return m.Mutate(ctx, session.ID, func(s *domain.Session) error {
		*s = *session.Clone()
		return nil
	})
}

// Mutate runs fn on a private copy under the session lock and commits it on success.
func (m *Memory) Mutate(ctx context.Context, id string, fn func(*domain.Session) error) error {
	e, working, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.unlock()

	if err := fn(working); err != nil {
		return err
	}

	working.ID = id
	working.UpdatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[id] != e {
		return ErrNotFound
	}
	e.session = working
	return nil
}

// Remove runs fn on a copy under the session lock and deletes the session on success.
func (m *Memory) Remove(ctx context.Context, id string, fn func(*domain.Session) error) error {
	e, working, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.unlock()

	if err := fn(working); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[id] != e {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

// Delete removes a session without waiting for in-flight writers. A writer
// that finishes afterwards will observe ErrNotFound on commit.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

// ExpireIdle deletes sessions whose last update is before the cutoff.
func (m *Memory) ExpireIdle(_ context.Context, before time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, e := range m.entries {
		if !e.session.IdleSince(before) {
			continue
		}
		// A held write lock means a completion is in flight.
		if !e.tryLock() {
			continue
		}
		delete(m.entries, id)
		e.unlock()
		expired = append(expired, id)
	}
	return expired
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// acquire locks the entry for id and returns a private working copy.
// The caller must call e.unlock when err is nil. Waiting for the lock ends
// with the context's error if ctx is done first.
func (m *Memory) acquire(ctx context.Context, id string) (*entry, *domain.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}

	if err := e.lock(ctx); err != nil {
		return nil, nil, fmt.Errorf("wait for session %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		e.unlock()
		return nil, nil, err
	}

	// The entry may have been removed while we waited for the lock.
	m.mu.RLock()
	current := m.entries[id]
	var working *domain.Session
	if current == e {
		working = e.session.Clone()
	}
	m.mu.RUnlock()

	if working == nil {
		e.unlock()
		return nil, nil, ErrNotFound
	}
	return e, working, nil
}

var _ Store = (*Memory)(nil)
