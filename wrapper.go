package solcore

import "sync"

// wrapperCore is the shared state backing Subscription, Inbox, and Timer:
// the callback-lock gating every invocation of the caller-supplied
// callbacks against the destroy-event, and the closure the caller
// provided at creation.
//
// The pattern, common to all three wrappers: every callback invocation
// takes callbackLock before running, and the destroy-event handler also
// takes callbackLock before tearing the object down. Whichever runs
// first keeps the lock until it finishes, so a callback can never start
// against an object that destroy has begun finalizing, and destroy can
// never finalize an object mid-callback.
type wrapperCore struct {
	callbackLock sync.Mutex
	closure      any
	id           string

	mu             sync.Mutex
	shutdown       bool
	destroyPending bool
	destroyed      bool
}

func newWrapperCore(closure any, id string) wrapperCore {
	return wrapperCore{closure: closure, id: id}
}

// markShutdown nulls out the callback slot under callbackLock: in-flight
// callbacks that already passed the gate still run to completion, but no
// new one will fire afterward.
func (w *wrapperCore) markShutdown(clear func()) {
	w.callbackLock.Lock()
	defer w.callbackLock.Unlock()
	w.mu.Lock()
	w.shutdown = true
	w.mu.Unlock()
	clear()
}

// markShutdownPending sets the shutdown gate without taking
// callbackLock, for sweeps that run with a map lock held and must not
// nest the callback-lock inside it. Callback slots stay populated; the
// gate alone keeps them from firing.
func (w *wrapperCore) markShutdownPending() {
	w.mu.Lock()
	w.shutdown = true
	w.mu.Unlock()
}

// markDestroyPending flips the gate guardedCallback checks without
// touching callbackLock, so the destroy entry point can neutralize every
// not-yet-started callback synchronously before it even enqueues the
// destroy-event — including when destroy is invoked from inside a
// callback currently holding callbackLock, where taking that lock again
// would self-deadlock. A callback already past the gate runs to
// completion; one that hasn't started yet never will.
func (w *wrapperCore) markDestroyPending() {
	w.mu.Lock()
	w.destroyPending = true
	w.mu.Unlock()
}

// guardedCallback runs fn under callbackLock, skipping it entirely if the
// object has already been marked shutdown, destroy-pending, or destroyed.
func (w *wrapperCore) guardedCallback(fn func()) {
	w.callbackLock.Lock()
	defer w.callbackLock.Unlock()
	w.mu.Lock()
	skip := w.shutdown || w.destroyPending || w.destroyed
	w.mu.Unlock()
	if skip {
		return
	}
	fn()
}

// finalize takes callbackLock exactly like the destroy-event handler
// does in the source, then runs fn (releasing the bridge handle) before
// marking the object destroyed. The entry has already been removed from
// its owning map by the time the destroy-event runs.
func (w *wrapperCore) finalize(fn func()) {
	w.callbackLock.Lock()
	defer w.callbackLock.Unlock()
	fn()
	w.mu.Lock()
	w.destroyed = true
	w.mu.Unlock()
}

func (w *wrapperCore) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *wrapperCore) isShutdown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shutdown
}
