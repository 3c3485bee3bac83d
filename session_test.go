package solcore

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCanDestroyTracksAllThreeMaps(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b)
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)
	assert.True(t, sess.canDestroy())

	ib, err := sess.CreateInbox(nil, nil, nil, "tcp")
	require.NoError(t, err)
	assert.False(t, sess.canDestroy())

	require.NoError(t, sess.DestroyInbox(ib))
	// DestroyInbox only enqueues the destroy-event; canDestroy only flips
	// back to true once it has actually drained off the session queue.
	require.Eventually(t, sess.canDestroy, time.Second, time.Millisecond)
}

// TestSessionDestroyAllEventsEmptiesMaps checks that after
// destroyAllEvents returns, all three of the session's maps are empty.
func TestSessionDestroyAllEventsEmptiesMaps(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b)
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)

	_, err = sess.CreateBasicSubscription(SubscriptionCallbacks{}, nil, "a.b", "tcp")
	require.NoError(t, err)
	_, err = sess.CreateInbox(nil, nil, nil, "tcp")
	require.NoError(t, err)
	_, err = sess.CreateTimer(func(any) {}, nil, time.Second)
	require.NoError(t, err)

	require.NoError(t, sess.destroyAllEvents())
	assert.Equal(t, 0, sess.subscriptions.Len())
	assert.Equal(t, 0, sess.inboxes.Len())
	assert.Equal(t, 0, sess.timers.Len())
	// destroyAllEvents empties the maps synchronously but only enqueues
	// the per-object destroy-events; canDestroy only reports true once
	// those have actually drained off the session queue.
	require.Eventually(t, sess.canDestroy, time.Second, time.Millisecond)
}

func TestSessionRejectsCreatesAfterDestroyed(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b, WithReaperInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)
	require.NoError(t, conn.DestroySession(sess))
	// allow the reaper to finalize it.
	require.Eventually(t, sess.isDestroyed, time.Second, 5*time.Millisecond)

	_, err = sess.CreateInbox(nil, nil, nil, "tcp")
	require.Error(t, err)
	assert.Equal(t, StatusInvalidArg, StatusOf(err))
}

// TestSessionShutdownRaceWithCallback: a goroutine calling Shutdown
// while another is inside a timer callback must
// block on the callback-lock until the callback returns, and no further
// callback may fire afterward.
func TestSessionShutdownRaceWithCallback(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b)
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)

	inCallback := make(chan struct{})
	releaseCallback := make(chan struct{})
	var ticks atomic.Int32
	timer, err := sess.CreateTimer(func(any) {
		ticks.Add(1)
		if ticks.Load() == 1 {
			close(inCallback)
			<-releaseCallback
		}
	}, nil, 10*time.Millisecond)
	require.NoError(t, err)

	<-inCallback
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, sess.ShutdownTimer(timer))
	}()

	time.Sleep(20 * time.Millisecond) // let Shutdown block on callback-lock
	close(releaseCallback)
	wg.Wait()

	countAtShutdown := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, countAtShutdown, ticks.Load())
}

// TestSessionDrainPacing: a session destroyed while it still owns an
// inbox is finalized by the reaper once the inbox's destroy-event has
// drained off the session queue.
func TestSessionDrainPacing(t *testing.T) {
	b := newFakeBridge()
	conn, err := Create(testCtx(t), b, WithReaperInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer conn.Destroy(testCtx(t))

	sess, err := conn.CreateSession(testCtx(t))
	require.NoError(t, err)
	_, err = sess.CreateInbox(nil, nil, nil, "tcp")
	require.NoError(t, err)

	require.NoError(t, conn.DestroySession(sess))
	require.Eventually(t, sess.isDestroyed, time.Second, 5*time.Millisecond)
}
