package solcore

import (
	"context"
	"sync"
	"time"
)

// Session owns a bridge Queue/Dispatcher pair plus the three
// SynchronizedKeyedMaps tracking its live Subscriptions, Inboxes, and
// Timers. Objects created on a Session may be created or destroyed from
// any goroutine; their callbacks always run on the Session's own
// dispatcher goroutine.
type Session struct {
	id         string
	connection *Connection
	queue      Queue

	subscriptions *SynchronizedKeyedMap
	inboxes       *SynchronizedKeyedMap
	timers        *SynchronizedKeyedMap

	mu        sync.Mutex
	destroyed bool
}

func newSession(conn *Connection, queue Queue) *Session {
	return &Session{
		id:            generateEventID(),
		connection:    conn,
		queue:         queue,
		subscriptions: NewSynchronizedKeyedMap(),
		inboxes:       NewSynchronizedKeyedMap(),
		timers:        NewSynchronizedKeyedMap(),
	}
}

// ID returns the session's debug/event-correlation identifier.
func (s *Session) ID() string { return s.id }

// canDestroy reports whether every map the session owns is empty AND its
// queue has no pending events, i.e. every destroy-event enqueued by
// destroyAllEvents has actually run. A session can look "empty" by map
// contents well before that: Drain clears the maps synchronously while
// the per-object destroy-events it enqueues are still sitting in the
// queue, so the reaper must wait for the queue to drain too before it
// is safe to finalize.
func (s *Session) canDestroy() bool {
	if s.subscriptions.Len() != 0 || s.inboxes.Len() != 0 || s.timers.Len() != 0 {
		return false
	}
	if s.queue != nil && s.queue.Depth() > 0 {
		return false
	}
	return true
}

// logError reports an asynchronous destroy-path failure (a bridge-level
// unsubscribe/close/stop that failed after the destroy-event had already
// been enqueued and its call-site return value discarded) through the
// connection's logger, mirroring how reaper failures are logged but
// never propagated.
func (s *Session) logError(op string, err error) {
	if s.connection == nil || s.connection.logger == nil {
		return
	}
	s.connection.logger.Warn(op+" failed", "sessionID", s.id, "error", err)
}

// isDestroyed reports whether finalize has already marked the session
// destroyed.
func (s *Session) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// CreateBasicSubscription adds a point subscription for symbol over
// transport, dispatched via this Session.
func (s *Session) CreateBasicSubscription(cb SubscriptionCallbacks, closure any, symbol, transport string) (*Subscription, error) {
	return s.createSubscription(cb, closure, SubscriptionBasic, "", symbol, transport)
}

// CreateWildcardSubscription adds a wildcard subscription matching
// symbol under source over transport.
func (s *Session) CreateWildcardSubscription(cb SubscriptionCallbacks, closure any, source, symbol, transport string) (*Subscription, error) {
	return s.createSubscription(cb, closure, SubscriptionWildcard, source, symbol, transport)
}

func (s *Session) createSubscription(cb SubscriptionCallbacks, closure any, kind SubscriptionType, source, symbol, transport string) (*Subscription, error) {
	if symbol == "" {
		return nil, WrapStatus(StatusInvalidArg, ErrInvalidArg)
	}
	if s.isDestroyed() {
		return nil, WrapStatus(StatusInvalidArg, ErrSessionDestroyed)
	}
	sub := newSubscription(s, cb, closure, kind, source, symbol, transport)
	if err := s.subscriptions.Insert(sub, sub); err != nil {
		return nil, wrap("create subscription", err)
	}

	if s.connection != nil && s.connection.bridge != nil {
		mw, err := s.connection.bridge.Subscribe(s.queue, source, symbol, transport, sub.deliverMessage, sub.deliverError)
		if err != nil {
			_, _ = s.subscriptions.Remove(sub)
			return nil, wrap("bridge subscribe", WrapStatus(StatusPlatform, err))
		}
		sub.mw = mw
	}

	s.emit(EventTypeSubscriptionCreated, "subscription", sub.id, nil)
	return sub, nil
}

// ShutdownSubscription nulls out sub's callbacks without releasing the
// bridge resource; a subsequent DestroySubscription finishes teardown.
func (s *Session) ShutdownSubscription(sub *Subscription) error {
	if sub == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	sub.shutdown()
	s.emit(EventTypeSubscriptionShutdown, "subscription", sub.id, nil)
	return nil
}

// DestroySubscription releases sub's bridge resource and removes it from
// this Session's map. Safe to call from any goroutine, any number of
// times; later calls observe ErrNotFound and return nil.
func (s *Session) DestroySubscription(sub *Subscription) error {
	if sub == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	if _, err := s.subscriptions.Remove(sub); err != nil {
		return nil
	}
	err := sub.destroy()
	s.emit(EventTypeSubscriptionDestroyed, "subscription", sub.id, nil)
	return err
}

// CreateInbox allocates a reply address dispatched via this Session.
func (s *Session) CreateInbox(closure any, errorCB InboxErrorCallback, msgCB InboxMessageCallback, transport string) (*Inbox, error) {
	if s.isDestroyed() {
		return nil, WrapStatus(StatusInvalidArg, ErrSessionDestroyed)
	}
	ib := newInbox(s, closure, errorCB, msgCB, transport)
	if err := s.inboxes.Insert(ib, ib); err != nil {
		return nil, wrap("create inbox", err)
	}

	if s.connection != nil && s.connection.bridge != nil {
		mw, err := s.connection.bridge.NewInbox(s.queue, transport, ib.deliverMessage, ib.deliverError)
		if err != nil {
			_, _ = s.inboxes.Remove(ib)
			return nil, wrap("bridge new inbox", WrapStatus(StatusPlatform, err))
		}
		ib.mw = mw
	}

	s.emit(EventTypeInboxCreated, "inbox", ib.id, nil)
	return ib, nil
}

func (s *Session) ShutdownInbox(ib *Inbox) error {
	if ib == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	ib.shutdown()
	s.emit(EventTypeInboxShutdown, "inbox", ib.id, nil)
	return nil
}

func (s *Session) DestroyInbox(ib *Inbox) error {
	if ib == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	if _, err := s.inboxes.Remove(ib); err != nil {
		return nil
	}
	err := ib.destroy()
	s.emit(EventTypeInboxDestroyed, "inbox", ib.id, nil)
	return err
}

// CreateTimer allocates a recurring timer ticking every interval,
// dispatched via this Session.
func (s *Session) CreateTimer(cb TimerCallback, closure any, interval time.Duration) (*Timer, error) {
	if interval <= 0 {
		return nil, WrapStatus(StatusInvalidArg, ErrInvalidInterval)
	}
	if s.isDestroyed() {
		return nil, WrapStatus(StatusInvalidArg, ErrSessionDestroyed)
	}
	t := newTimer(s, cb, closure, interval)
	if err := s.timers.Insert(t, t); err != nil {
		return nil, wrap("create timer", err)
	}
	if s.connection != nil {
		t.entryID = s.connection.scheduleTimer(t)
	}
	s.emit(EventTypeTimerCreated, "timer", t.id, nil)
	return t, nil
}

func (s *Session) ShutdownTimer(t *Timer) error {
	if t == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	t.shutdown()
	s.emit(EventTypeTimerShutdown, "timer", t.id, nil)
	return nil
}

func (s *Session) DestroyTimer(t *Timer) error {
	if t == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	if _, err := s.timers.Remove(t); err != nil {
		return nil
	}
	err := t.destroy()
	s.emit(EventTypeTimerDestroyed, "timer", t.id, nil)
	return err
}

// destroyAllEvents drains every subscription, inbox, and timer the
// session still owns, map by map (subscriptions, then inboxes, then
// timers), each map in the order its objects were created. After it returns
// the three maps are empty; the per-object destroy-events it enqueued
// still have to drain off the session queue before canDestroy is true.
func (s *Session) destroyAllEvents() error {
	var lastErr error
	if err := s.subscriptions.Drain(func(_, data any) error {
		return data.(*Subscription).destroy()
	}); err != nil {
		lastErr = err
	}
	if err := s.inboxes.Drain(func(_, data any) error {
		return data.(*Inbox).destroy()
	}); err != nil {
		lastErr = err
	}
	if err := s.timers.Drain(func(_, data any) error {
		return data.(*Timer).destroy()
	}); err != nil {
		lastErr = err
	}
	return lastErr
}

// shutdown marks every owned object shut down without destroying it.
// Each ForEach sweep runs with that map's lock held, so no object can be
// added or removed mid-sweep; the callbacks flip only the shutdown gate
// (never callbackLock, which must not nest inside a map lock — an
// in-flight callback holding callbackLock may itself be calling destroy,
// which takes the map lock to remove).
func (s *Session) shutdown() {
	_ = s.subscriptions.ForEach(func(_, data any) error {
		data.(*Subscription).markShutdownPending()
		return nil
	}, true)
	_ = s.inboxes.ForEach(func(_, data any) error {
		data.(*Inbox).markShutdownPending()
		return nil
	}, true)
	_ = s.timers.ForEach(func(_, data any) error {
		data.(*Timer).markShutdownPending()
		return nil
	}, true)
}

// prepareDestroy drains every owned subscription/inbox/timer immediately,
// bounded by how long each destroy() call itself takes — it does not wait
// for the dispatcher goroutine to exit. Connection.DestroySession and
// Connection.Destroy both call this to move a session off the active
// list without incurring any delay; finalize() (run later, by the
// reaper or by Destroy's own drain loop) then completes teardown once
// canDestroy is true.
func (s *Session) prepareDestroy() error {
	return s.destroyAllEvents()
}

// finalize completes session teardown once canDestroy() is true: stops
// the dispatcher goroutine and marks the session destroyed. Called by
// the reaper, or directly by Connection.Destroy's own drain loop.
func (s *Session) finalize(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	s.destroyed = true
	s.mu.Unlock()

	var err error
	if s.queue != nil {
		err = s.queue.Dispatcher().Stop(ctx)
	}
	if s.connection != nil {
		s.connection.emitLifecycle(EventTypeSessionDestroyed, "session", s.id, s.connection.id, nil)
	}
	return err
}

func (s *Session) emit(eventType, kind, id string, metadata map[string]interface{}) {
	if s.connection == nil {
		return
	}
	s.connection.emitLifecycle(eventType, kind, id, s.id, metadata)
}
