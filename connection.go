package solcore

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Default tunables, overridable via ConnectionOption or ConnectionConfig.
const (
	DefaultReaperInterval = 1 * time.Second
	DefaultDestroyWait    = 10 * time.Second
	destroyPollInterval   = 10 * time.Millisecond
)

// Connection is the top-level handle for one bridge binding. It owns the
// object queue/dispatcher on which every Session is created and on which
// Destroy's final-reaper runs, plus a reaper that periodically sweeps
// destroyed sessions off the destroyed-pending list once they have no
// remaining open objects.
type Connection struct {
	bridge  Bridge
	logger  Logger
	subject *subjectImpl

	objectQueue Queue

	mu                sync.Mutex
	activeSessions    *list.List // of *Session, still open for new objects
	destroyedSessions *list.List // of *Session, awaiting final teardown
	sessionEntries    map[*Session]*list.Element
	destroyed         bool

	reaper         *cron.Cron
	reaperEntry    cron.EntryID
	reaperInterval time.Duration

	// destroyEvent is signaled by the final-reaper event once the last
	// destroyed-pending session has been finalized (or the destroy-wait
	// deadline passed); Destroy blocks on it.
	destroyEvent *CrossThreadEvent
	destroyWait  time.Duration

	id string
}

// sessionCreateEvent is the utility structure carried by the
// session-create event enqueued onto the object queue: the object-queue
// dispatcher fills in session/err and signals done, and the caller of
// CreateSession blocks on done until it does.
type sessionCreateEvent struct {
	session *Session
	err     error
	done    *CrossThreadEvent
}

// ConnectionOption configures optional Connection behavior at creation time.
type ConnectionOption func(*Connection)

// WithLogger sets the Logger used for lifecycle/diagnostic logging.
func WithLogger(l Logger) ConnectionOption {
	return func(c *Connection) { c.logger = l }
}

// WithObserver registers observer for the lifecycle CloudEvents the
// Connection and its Sessions emit, restricted to eventTypes if any are
// given. Equivalent to calling RegisterObserver after Create, but
// guarantees the observer also sees the connection-created event itself.
func WithObserver(observer Observer, eventTypes ...string) ConnectionOption {
	return func(c *Connection) { _ = c.subject.RegisterObserver(observer, eventTypes...) }
}

// WithReaperInterval overrides the default 1-second reaper sweep interval.
func WithReaperInterval(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.reaperInterval = d }
}

// WithDestroyWait overrides the default 10-second timeout Destroy waits
// for every destroyed-pending session to become finalizable before
// giving up and returning ErrTimeout. The connection is left torn down
// regardless of whether this deadline is hit.
func WithDestroyWait(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.destroyWait = d }
}

// Create opens b and returns a Connection ready to create Sessions. ctx
// bounds only the bridge's own Open call.
func Create(ctx context.Context, b Bridge, opts ...ConnectionOption) (*Connection, error) {
	if b == nil {
		return nil, WrapStatus(StatusNullArg, ErrNullArg)
	}
	if err := b.Open(ctx); err != nil {
		return nil, wrap("open bridge", WrapStatus(StatusPlatform, err))
	}

	c := &Connection{
		bridge:            b,
		logger:            noopLogger{},
		subject:           newSubject(),
		activeSessions:    list.New(),
		destroyedSessions: list.New(),
		sessionEntries:    make(map[*Session]*list.Element),
		destroyEvent:      NewCrossThreadEvent(),
		destroyWait:       DefaultDestroyWait,
		reaperInterval:    DefaultReaperInterval,
		id:                generateEventID(),
	}
	for _, opt := range opts {
		opt(c)
	}

	q, err := b.NewQueue()
	if err != nil {
		return nil, wrap("create object queue", WrapStatus(StatusPlatform, err))
	}
	c.objectQueue = q
	if err := q.Dispatcher().Start(); err != nil {
		return nil, wrap("start object dispatcher", WrapStatus(StatusPlatform, err))
	}

	c.reaper = cron.New()
	c.reaperEntry = c.reaper.Schedule(everyInterval(c.reaperInterval), cron.FuncJob(c.reapSweep))
	c.reaper.Start()

	c.emitLifecycle(EventTypeConnectionCreated, "connection", c.id, "", nil)
	return c, nil
}

// Destroy stops the reaper first (so no more ticks can race this
// teardown), moves every active session onto the destroyed-pending list
// and drains each session's owned objects, then enqueues a final-reaper
// event onto the object queue and blocks on the destroy-event. The
// final-reaper runs the same sweep a tick would, yielding between passes
// while session queues drain, and signals the destroy-event once no
// destroyed-pending session remains (or the destroy-wait deadline
// passed). The object dispatcher and bridge are closed regardless of
// whether the deadline was hit.
func (c *Connection) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	c.reaper.Stop()

	c.mu.Lock()
	pending := make([]*Session, 0, c.activeSessions.Len())
	for el := c.activeSessions.Front(); el != nil; el = el.Next() {
		pending = append(pending, el.Value.(*Session))
	}
	c.activeSessions = list.New()
	c.mu.Unlock()

	for _, s := range pending {
		c.moveToDestroyedPending(s)
	}

	deadline := time.Now().Add(c.destroyWait)
	finalReaper := func() {
		for c.finalizeReady() != 0 {
			if time.Now().After(deadline) {
				break
			}
			time.Sleep(destroyPollInterval)
		}
		c.destroyEvent.Set()
	}
	if err := c.objectQueue.Enqueue(finalReaper); err != nil {
		finalReaper()
	}

	var lastErr error
	if err := c.destroyEvent.TimedWait(c.destroyWait + time.Second); err != nil {
		lastErr = err
	} else if c.finalizeReady() != 0 {
		lastErr = WrapStatus(StatusTimeout, ErrTimeout)
	}

	if c.objectQueue != nil {
		if err := c.objectQueue.Dispatcher().Stop(ctx); err != nil && lastErr == nil {
			lastErr = err
		}
	}
	if err := c.bridge.Close(); err != nil && lastErr == nil {
		lastErr = wrap("close bridge", WrapStatus(StatusPlatform, err))
	}

	c.emitLifecycle(EventTypeConnectionDestroyed, "connection", c.id, "", nil)
	return lastErr
}

// CreateSession allocates a new Session backed by its own bridge Queue.
// The queue and dispatcher are constructed on the object-queue dispatcher
// goroutine — never the caller's — so every session's creation is
// serialized against every other session lifecycle event touching the
// bridge; the caller blocks on the event carried by the session-create
// utility structure until that happens.
func (c *Connection) CreateSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, WrapStatus(StatusInvalidArg, ErrConnectionDestroyed)
	}
	c.mu.Unlock()

	ev := &sessionCreateEvent{done: NewCrossThreadEvent()}
	if err := c.objectQueue.Enqueue(func() {
		defer ev.done.Set()
		q, err := c.bridge.NewQueue()
		if err != nil {
			ev.err = wrap("create session queue", WrapStatus(StatusPlatform, err))
			return
		}
		if err := q.Dispatcher().Start(); err != nil {
			ev.err = wrap("start session dispatcher", WrapStatus(StatusPlatform, err))
			return
		}
		ev.session = newSession(c, q)
	}); err != nil {
		return nil, wrap("enqueue session create", WrapStatus(StatusPlatform, err))
	}

	ev.done.Wait()
	if ev.err != nil {
		return nil, ev.err
	}
	s := ev.session

	c.mu.Lock()
	if c.destroyed {
		// Destroy swept the active list while this create was in flight
		// on the object queue; the new session was never visible to that
		// sweep, so tear it down here instead of leaking its dispatcher.
		c.mu.Unlock()
		_ = s.finalize(ctx)
		return nil, WrapStatus(StatusInvalidArg, ErrConnectionDestroyed)
	}
	el := c.activeSessions.PushBack(s)
	c.sessionEntries[s] = el
	c.mu.Unlock()

	c.emitLifecycle(EventTypeSessionCreated, "session", s.id, c.id, nil)
	return s, nil
}

// ShutdownSession marks every object owned by s as shut down, without
// destroying them or removing s from the active list. A later
// DestroySession completes teardown.
func (c *Connection) ShutdownSession(s *Session) error {
	if s == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	s.shutdown()
	c.emitLifecycle(EventTypeSessionShutdown, "session", s.id, c.id, nil)
	return nil
}

// DestroySession drains every object s owns and moves it onto the
// destroyed-pending list; this returns without any significant delay.
// The reaper finalizes s (stopping its dispatcher) once canDestroy is
// true — which for a freshly drained session is immediately on the next
// sweep.
func (c *Connection) DestroySession(s *Session) error {
	if s == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	c.mu.Lock()
	if el, ok := c.sessionEntries[s]; ok {
		c.activeSessions.Remove(el)
		delete(c.sessionEntries, s)
	}
	c.mu.Unlock()

	return c.moveToDestroyedPending(s)
}

func (c *Connection) moveToDestroyedPending(s *Session) error {
	err := s.prepareDestroy()

	c.mu.Lock()
	el := c.destroyedSessions.PushBack(s)
	c.sessionEntries[s] = el
	c.mu.Unlock()
	return err
}

// reapSweep runs on the cron schedule: every destroyed-pending session
// that has no remaining open subscriptions/inboxes/timers is finalized
// and removed from the list. Sessions with still-open objects (e.g. a
// Subscription whose destroy callback hasn't completed) are left for
// the next sweep.
func (c *Connection) reapSweep() {
	c.finalizeReady()
}

// finalizeReady finalizes every destroyed-pending session that can be,
// and returns how many are still left pending.
func (c *Connection) finalizeReady() int {
	c.mu.Lock()
	var ready []*Session
	for el := c.destroyedSessions.Front(); el != nil; {
		next := el.Next()
		s := el.Value.(*Session)
		if s.canDestroy() {
			ready = append(ready, s)
			c.destroyedSessions.Remove(el)
			delete(c.sessionEntries, s)
		}
		el = next
	}
	remaining := c.destroyedSessions.Len()
	c.mu.Unlock()

	if len(ready) == 0 {
		return remaining
	}
	for _, s := range ready {
		if err := s.finalize(context.Background()); err != nil {
			c.logger.Warn("reaper failed to finalize session", "sessionID", s.id, "error", err)
		}
	}
	c.emitLifecycle(EventTypeSessionReapSwept, "connection", c.id, "", map[string]interface{}{
		"reaped":    len(ready),
		"remaining": remaining,
	})
	return remaining
}

// updateReaperInterval re-registers the reaper's cron entry at a new
// interval, used by ConfigWatcher when ReaperIntervalSeconds changes on
// disk.
func (c *Connection) updateReaperInterval(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || c.reaper == nil {
		return WrapStatus(StatusInvalidArg, ErrConnectionDestroyed)
	}
	c.reaper.Remove(c.reaperEntry)
	c.reaperEntry = c.reaper.Schedule(everyInterval(d), cron.FuncJob(c.reapSweep))
	c.reaperInterval = d
	return nil
}

// scheduleTimer registers t's ticking on the shared reaper cron, but the
// cron job itself only enqueues t.tick onto t's owning session's
// dispatcher queue rather than running it directly on cron's own
// goroutine pool. This is what keeps a session's Timer callbacks
// serialized against that same session's Subscription/Inbox callbacks
// (and against each other) on the one dispatcher goroutine this system
// requires; cron only supplies the schedule, never the execution
// context.
func (c *Connection) scheduleTimer(t *Timer) cron.EntryID {
	return c.reaper.Schedule(everyInterval(t.interval), cron.FuncJob(func() {
		if t.session != nil && t.session.queue != nil {
			_ = t.session.queue.Enqueue(t.tick)
			return
		}
		t.tick()
	}))
}

func (c *Connection) unscheduleTimer(id cron.EntryID) {
	if c.reaper != nil {
		c.reaper.Remove(id)
	}
}

// RegisterObserver, UnregisterObserver, NotifyObservers, and GetObservers
// implement Subject so a Connection can itself be observed.
func (c *Connection) RegisterObserver(observer Observer, eventTypes ...string) error {
	return c.subject.RegisterObserver(observer, eventTypes...)
}

func (c *Connection) UnregisterObserver(observer Observer) error {
	return c.subject.UnregisterObserver(observer)
}

func (c *Connection) NotifyObservers(ctx context.Context, event CloudEvent) error {
	return c.subject.NotifyObservers(ctx, event)
}

func (c *Connection) GetObservers() []ObserverInfo {
	return c.subject.GetObservers()
}

func (c *Connection) emitLifecycle(eventType, kind, id, parentID string, metadata map[string]interface{}) {
	evt := NewLifecycleEvent("solcore/"+c.id, eventType, kind, id, parentID, lifecycleAction(eventType), metadata)
	if err := c.subject.NotifyObservers(context.Background(), evt); err != nil {
		HandleEventEmissionError(err, c.logger, c.id, eventType)
	}
}

func lifecycleAction(eventType string) string {
	switch eventType {
	case EventTypeConnectionCreated, EventTypeSessionCreated, EventTypeSubscriptionCreated, EventTypeInboxCreated, EventTypeTimerCreated:
		return "created"
	case EventTypeSessionShutdown, EventTypeSubscriptionShutdown, EventTypeInboxShutdown, EventTypeTimerShutdown:
		return "shutdown"
	case EventTypeSessionReapSwept:
		return "reaped"
	default:
		return "destroyed"
	}
}

// everyInterval is a fixed-delay cron Schedule. cron's own @every spec
// floors every delay at one second, which would make sub-second reaper
// sweeps and timer intervals impossible; this keeps the cron run loop
// and entry management while honoring the requested delay exactly.
type everyInterval time.Duration

func (e everyInterval) Next(t time.Time) time.Time {
	d := time.Duration(e)
	if d <= 0 {
		d = time.Second
	}
	return t.Add(d)
}
