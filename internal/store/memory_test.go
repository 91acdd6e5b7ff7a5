package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/hint-tutor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession() *domain.Session {
	return &domain.Session{
		Question: "What is 2+2?",
		Transcript: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "q"},
			{Role: domain.RoleAssistant, Content: "hint 1"},
		},
		HintCount: 1,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	orig := seedSession()
	id, err := m.Create(ctx, orig)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, m.Len())
	assert.Empty(t, orig.ID, "caller's session must not be modified")

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "What is 2+2?", got.Question)
	assert.Len(t, got.Transcript, 3)
	assert.False(t, got.CreatedAt.IsZero())

	// Mutating the returned copy must not leak into the store.
	got.Append(domain.Message{Role: domain.RoleUser, Content: "x"})
	again, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, again.Transcript, 3)
}

func TestMemoryCreateUniqueIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := m.Create(ctx, seedSession())
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 100, m.Len())
}

func TestMemoryCreateRegeneratesCollidingID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := []string{"fixed", "fixed", "other"}
	m.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := m.Create(ctx, seedSession())
	require.NoError(t, err)
	second, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	assert.Equal(t, "fixed", first)
	assert.Equal(t, "other", second)
}

func TestMemoryGetMissing(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMutateCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	err = m.Mutate(ctx, id, func(s *domain.Session) error {
		s.Append(domain.Message{Role: domain.RoleUser, Content: "attempt"})
		s.HintCount++
		return nil
	})
	require.NoError(t, err)

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HintCount)
	assert.Len(t, got.Transcript, 4)
}

func TestMemoryMutateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	boom := errors.New("upstream failed")
	err = m.Mutate(ctx, id, func(s *domain.Session) error {
		s.Append(domain.Message{Role: domain.RoleUser, Content: "attempt"})
		s.HintCount++
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.HintCount)
	assert.Len(t, got.Transcript, 3)
}

func TestMemoryMutateMissing(t *testing.T) {
	called := false
	err := NewMemory().Mutate(context.Background(), "nope", func(*domain.Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}

func TestMemoryMutateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.Mutate(ctx, id, func(s *domain.Session) error {
				// Yield while holding the session to widen any race window.
				time.Sleep(time.Millisecond)
				s.Append(domain.Message{Role: domain.RoleUser, Content: fmt.Sprintf("w%d", i)})
				s.HintCount++
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1+writers, got.HintCount)
	assert.Len(t, got.Transcript, 3+writers)
}

func TestMemoryQueuedWriterHonoursDeadline(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Mutate(ctx, id, func(*domain.Session) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	called := false
	err = m.Mutate(waitCtx, id, func(*domain.Session) error {
		called = true
		return nil
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	assert.Less(t, elapsed, time.Second)

	err = m.Remove(waitCtx, id, func(*domain.Session) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	boom := errors.New("no solution")
	require.ErrorIs(t, m.Remove(ctx, id, func(*domain.Session) error { return boom }), boom)
	assert.Equal(t, 1, m.Len(), "failed remove must keep the session")

	var seen *domain.Session
	require.NoError(t, m.Remove(ctx, id, func(s *domain.Session) error {
		seen = s
		return nil
	}))
	assert.Equal(t, 0, m.Len())
	require.NotNil(t, seen)
	assert.Equal(t, "What is 2+2?", seen.Question)

	_, err = m.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Remove(ctx, id, func(*domain.Session) error { return nil }), ErrNotFound)
}

func TestMemoryWaiterSeesRemovedSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	inRemove := make(chan struct{})
	release := make(chan struct{})
	removeDone := make(chan error, 1)
	go func() {
		removeDone <- m.Remove(ctx, id, func(*domain.Session) error {
			close(inRemove)
			<-release
			return nil
		})
	}()
	<-inRemove

	mutateDone := make(chan error, 1)
	go func() {
		mutateDone <- m.Mutate(ctx, id, func(s *domain.Session) error {
			s.HintCount++
			return nil
		})
	}()

	// Give the mutator time to block on the session lock.
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-removeDone)
	assert.ErrorIs(t, <-mutateDone, ErrNotFound)
}

func TestMemoryPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	s, err := m.Get(ctx, id)
	require.NoError(t, err)
	s.HintCount = 5
	require.NoError(t, m.Put(ctx, s))

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.HintCount)

	assert.ErrorIs(t, m.Put(ctx, &domain.Session{ID: "missing"}), ErrNotFound)
	assert.Error(t, m.Put(ctx, nil))
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, id))
	assert.ErrorIs(t, m.Delete(ctx, id), ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryExpireIdle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Now()
	m.now = func() time.Time { return base.Add(-2 * time.Hour) }
	oldID, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	m.now = func() time.Time { return base }
	freshID, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	expired := m.ExpireIdle(ctx, base.Add(-time.Hour))
	assert.Equal(t, []string{oldID}, expired)

	_, err = m.Get(ctx, oldID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, freshID)
	assert.NoError(t, err)
}

func TestMemoryExpireIdleSkipsBusySessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now()
	m.now = func() time.Time { return base.Add(-2 * time.Hour) }
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	inMutate := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Mutate(ctx, id, func(*domain.Session) error {
			close(inMutate)
			<-release
			return nil
		})
	}()
	<-inMutate

	assert.Empty(t, m.ExpireIdle(ctx, base))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, m.Len())
}

func TestSweepIdleSessionsCallsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	id, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	var got []string
	expired := sweepIdleSessions(ctx, m, time.Minute, func(ids []string) { got = ids })
	assert.Equal(t, []string{id}, expired)
	assert.Equal(t, []string{id}, got)

	assert.Nil(t, sweepIdleSessions(ctx, m, time.Minute, func([]string) { t.Fatal("unexpected callback") }))
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Second, sweepInterval(time.Second))
	assert.Equal(t, 15*time.Second, sweepInterval(time.Minute))
	assert.Equal(t, 5*time.Minute, sweepInterval(24*time.Hour))
}

func TestStartTTLWorkerExpiresSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := m.Create(ctx, seedSession())
	require.NoError(t, err)

	expired := make(chan []string, 1)
	StartTTLWorker(ctx, m, time.Second, func(ids []string) { expired <- ids })

	select {
	case ids := <-expired:
		assert.Len(t, ids, 1)
	case <-time.After(3 * time.Second):
		t.Fatal("TTL worker did not expire the idle session")
	}
	assert.Equal(t, 0, m.Len())
}
