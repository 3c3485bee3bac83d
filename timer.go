package solcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Timer is a managed wrapper around one recurring callback. Like
// Subscription and Inbox it shares the callback-lock gating pattern, but
// additionally carries a second lock (destroyLock) and a "destroying"
// flag so that a destroy request is never starved behind a continuously
// re-firing tick: each tick checks the destroying flag before running
// its callback and bails out immediately if a destroy is already
// underway, rather than queuing up behind callbackLock indefinitely.
type Timer struct {
	wrapperCore

	session     *Session
	callback    TimerCallback
	interval    time.Duration
	destroyLock sync.Mutex
	destroying  atomic.Bool

	entryID cron.EntryID
}

func newTimer(session *Session, callback TimerCallback, closure any, interval time.Duration) *Timer {
	return &Timer{
		wrapperCore: newWrapperCore(closure, generateEventID()),
		session:     session,
		callback:    callback,
		interval:    interval,
	}
}

// ID returns the timer's debug/event-correlation identifier.
func (t *Timer) ID() string { return t.id }

// tick is invoked by the Session's dispatcher once per interval.
func (t *Timer) tick() {
	if t.destroying.Load() {
		return
	}
	t.guardedCallback(func() {
		if t.callback != nil {
			t.callback(t.closure)
		}
	})
}

func (t *Timer) shutdown() {
	t.markShutdown(func() {
		t.callback = nil
	})
}

// destroy flips the destroying flag immediately on the calling goroutine
// — ticks already queued ahead of the destroy-event bail out at the top
// of tick without ever contending for callbackLock — then enqueues the
// destroy-event onto the owning session's dispatcher queue, the same
// queue every tick is routed through, so callbackLock is only ever
// acquired by the dispatcher goroutine and a tick callback can destroy
// its own timer without deadlocking. destroyLock still brackets the
// enqueued teardown: a tick that was already past the destroying check
// and in flight on the dispatcher finishes before the cron entry is
// removed and the wrapper torn down.
func (t *Timer) destroy() error {
	t.destroying.Store(true)
	t.markDestroyPending()
	run := func() {
		t.destroyLock.Lock()
		defer t.destroyLock.Unlock()

		t.finalize(func() {
			if t.session != nil && t.session.connection != nil {
				t.session.connection.unscheduleTimer(t.entryID)
			}
			t.callback = nil
		})
	}
	if t.session == nil || t.session.queue == nil {
		run()
		return nil
	}
	return t.session.queue.Enqueue(run)
}
