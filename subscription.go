package solcore

import "fmt"

// SubscriptionType distinguishes a basic point subscription from a
// wildcard subscription.
type SubscriptionType int

const (
	SubscriptionBasic SubscriptionType = iota
	SubscriptionWildcard
)

// Subscription is a managed wrapper around one bridge-level subscription.
// It can be created and destroyed from any goroutine; its callbacks are
// always invoked on its owning Session's dispatcher goroutine.
type Subscription struct {
	wrapperCore

	session   *Session
	mw        MWSubscription
	callbacks SubscriptionCallbacks
	kind      SubscriptionType
	symbol    string
	source    string
	transport string
}

func newSubscription(session *Session, callbacks SubscriptionCallbacks, closure any, kind SubscriptionType, source, symbol, transport string) *Subscription {
	return &Subscription{
		wrapperCore: newWrapperCore(closure, generateEventID()),
		session:     session,
		callbacks:   callbacks,
		kind:        kind,
		symbol:      symbol,
		source:      source,
		transport:   transport,
	}
}

// ID returns the subscription's debug/event-correlation identifier.
func (s *Subscription) ID() string { return s.id }

// deliverMessage is invoked by the Session's dispatcher for each inbound
// message, gated by the callback-lock.
func (s *Subscription) deliverMessage(subject string, payload []byte) {
	s.guardedCallback(func() {
		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(s.closure, subject, payload)
		}
	})
}

// deliverError is invoked by the Session's dispatcher for a subscription-
// level error.
func (s *Subscription) deliverError(err error) {
	s.guardedCallback(func() {
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(s.closure, err)
		}
	})
}

// shutdown nulls out the message/error callbacks so no further callback
// fires, while leaving the bridge-level subscription (and its entry in
// the session's map) intact until Destroy runs.
func (s *Subscription) shutdown() {
	s.markShutdown(func() {
		s.callbacks.OnMessage = nil
		s.callbacks.OnError = nil
	})
}

// destroy neutralizes the user callbacks immediately on the calling
// goroutine, then enqueues the destroy-event referencing this
// subscription onto the owning session's dispatcher queue. The
// neutralization-before-enqueue order matters: once destroy returns, a
// message already sitting in the queue ahead of the destroy-event still
// gets dispatched, but finds the gate closed and never reaches the user
// callback. Routing the teardown itself through the queue instead of
// taking callbackLock inline is what lets a message callback destroy its
// own subscription without deadlocking: callbackLock is then only ever
// acquired by the dispatcher goroutine, the same one already holding it
// while the callback runs, never re-entered synchronously by that same
// callback.
func (s *Subscription) destroy() error {
	s.markDestroyPending()
	run := func() {
		var unsubErr error
		s.finalize(func() {
			if s.mw != nil {
				unsubErr = s.mw.Unsubscribe()
			}
			if s.callbacks.OnDestroy != nil {
				s.callbacks.OnDestroy(s.closure)
			}
		})
		if unsubErr != nil && s.session != nil {
			s.session.logError("subscription destroy", unsubErr)
		}
	}
	if s.session == nil || s.session.queue == nil {
		run()
		return nil
	}
	return s.session.queue.Enqueue(run)
}

func (s *Subscription) String() string {
	if s.kind == SubscriptionWildcard {
		return fmt.Sprintf("Subscription{id=%s, wildcard, source=%s, symbol=%s}", s.id, s.source, s.symbol)
	}
	return fmt.Sprintf("Subscription{id=%s, basic, symbol=%s}", s.id, s.symbol)
}
