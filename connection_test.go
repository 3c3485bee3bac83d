package solcore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionCreateRejectsNilBridge(t *testing.T) {
	_, err := Create(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, StatusNullArg, StatusOf(err))
}

func TestConnectionDestroyIsIdempotent(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b)
	require.NoError(t, err)
	require.NoError(t, conn.Destroy(testCtx(t)))
	require.NoError(t, conn.Destroy(testCtx(t)))
	assert.True(t, b.isClosed())
}

// TestConnectionDestroyWithActiveSessionsDrainsAll exercises the boundary
// behavior: destroyConnection with N active sessions returns OK and
// leaves zero allocated sessions.
func TestConnectionDestroyWithActiveSessionsDrainsAll(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b, WithReaperInterval(5*time.Millisecond))
	require.NoError(t, err)

	const n = 5
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		s, err := conn.CreateSession(testCtx(t))
		require.NoError(t, err)
		sessions[i] = s
		_, err = s.CreateInbox(nil, nil, nil, "tcp")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Destroy(ctx))

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 0, conn.activeSessions.Len())
	assert.Equal(t, 0, conn.destroyedSessions.Len())
	for _, s := range sessions {
		assert.True(t, s.isDestroyed())
	}
}

// TestConnectionTeardownWithPendingTimers:
// 3 sessions, 10 timers each at a fast interval; Destroy must
// return OK within the deadline and no timer callback may fire afterward.
func TestConnectionTeardownWithPendingTimers(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b, WithReaperInterval(5*time.Millisecond))
	require.NoError(t, err)

	var ticks atomic.Int64
	for s := 0; s < 3; s++ {
		sess, err := conn.CreateSession(testCtx(t))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			_, err := sess.CreateTimer(func(any) { ticks.Add(1) }, nil, 5*time.Millisecond)
			require.NoError(t, err)
		}
	}

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Destroy(ctx))

	countAtDestroy := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countAtDestroy, ticks.Load(), "no timer may tick after Destroy returns")
}

// TestConnectionCrossThreadInboxRace: one
// goroutine repeatedly creates inboxes while another destroys them by the
// handles the first publishes; DestroyConnection must still succeed
// cleanly afterward.
func TestConnectionCrossThreadInboxRace(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b)
	require.NoError(t, err)

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)

	const n = 200
	handles := make(chan *Inbox, n)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(handles)
		for i := 0; i < n; i++ {
			ib, err := sess.CreateInbox(nil, nil, nil, "tcp")
			if err == nil {
				handles <- ib
			}
		}
	}()
	go func() {
		defer wg.Done()
		for ib := range handles {
			_ = sess.DestroyInbox(ib)
		}
	}()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Destroy(ctx))
}

func TestConnectionReaperLeavesOpenSessionsUntilDrained(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b, WithReaperInterval(5*time.Millisecond))
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)
	ib, err := sess.CreateInbox(nil, nil, nil, "tcp")
	require.NoError(t, err)

	require.NoError(t, conn.DestroySession(sess))
	require.NoError(t, sess.DestroyInbox(ib)) // already removed by destroyAllEvents; must be a no-op

	require.Eventually(t, sess.isDestroyed, time.Second, 5*time.Millisecond)
}

func TestConnectionEmitsLifecycleEventsToObserver(t *testing.T) {
	b := newFakeBridge()
	events := make(chan string, 16)
	obs := NewFunctionalObserver("lifecycle-probe", func(_ context.Context, evt CloudEvent) error {
		events <- evt.Type()
		return nil
	})
	conn, err := Create(testCtx(t), b,
		WithObserver(obs, EventTypeSessionCreated, EventTypeSessionDestroyed),
		WithReaperInterval(5*time.Millisecond))
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)
	require.NoError(t, conn.DestroySession(sess))
	require.Eventually(t, sess.isDestroyed, time.Second, 5*time.Millisecond)

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case et := <-events:
			seen[et] = true
		case <-deadline:
			t.Fatalf("lifecycle events never arrived, saw only %v", seen)
		}
	}
	assert.True(t, seen[EventTypeSessionCreated])
	assert.True(t, seen[EventTypeSessionDestroyed])
}

func TestConnectionShutdownSessionDoesNotRemoveFromActiveList(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b)
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)
	require.NoError(t, conn.ShutdownSession(sess))

	conn.mu.Lock()
	_, stillActive := conn.sessionEntries[sess]
	conn.mu.Unlock()
	assert.True(t, stillActive)
	assert.False(t, sess.isDestroyed())
}
