package solcore

import "context"

// Bridge is the seam between solcore and a concrete pub/sub middleware
// binding (a transport family like NATS, Solace, or an in-process test
// driver). solcore treats Bridge purely as an opaque collaborator: it
// never inspects or retains state about which binding is behind it.
//
// A Bridge owns no lifetime logic of its own; all lifetime/ordering
// guarantees live in Connection/Session/the managed wrappers. Bridge
// implementations only need to faithfully open queues and publish to
// and subscribe on named subjects; timer scheduling stays inside the
// managed layer.
type Bridge interface {
	// Open validates the bridge is ready to participate in a Connection
	// (e.g. the underlying client is connected) and returns StatusOK,
	// or a status/error describing why it cannot be used.
	Open(ctx context.Context) error

	// Close releases bridge-level resources once every Session owned by
	// the Connection using this Bridge has been destroyed.
	Close() error

	// NewQueue allocates a Queue (and its backing Dispatcher) for one Session.
	NewQueue() (Queue, error)

	// Subscribe opens a point or wildcard subscription depending on
	// whether source is empty, delivering matched messages and errors
	// onto q's dispatcher goroutine via onMessage/onError.
	Subscribe(q Queue, source, symbol, transport string, onMessage func(subject string, payload []byte), onError func(err error)) (MWSubscription, error)

	// NewInbox allocates a reply address whose deliveries are run on q's
	// dispatcher goroutine via onMessage/onError.
	NewInbox(q Queue, transport string, onMessage func(payload []byte), onError func(err error)) (MWInbox, error)
}

// Queue is the per-Session work queue. Enqueue hands work to the
// Dispatcher goroutine servicing this queue; Depth reports how much of
// it is still outstanding.
type Queue interface {
	// Enqueue schedules fn to run on the queue's dispatcher goroutine.
	Enqueue(fn func()) error

	// Dispatcher returns the Dispatcher driving this queue.
	Dispatcher() Dispatcher

	// Depth reports the number of items currently queued (including the
	// one possibly in flight), used by Session.canDestroy.
	Depth() int
}

// Dispatcher represents the single goroutine pumping a Queue. Start/Stop
// manage that goroutine's lifetime; a Queue and its Dispatcher always
// come from the same Bridge.NewQueue call.
type Dispatcher interface {
	Start() error
	Stop(ctx context.Context) error
}

// MWSubscription is the bridge-level handle for one subscription. The
// managed Subscription wrapper holds one of these and forwards
// Unsubscribe to it at destroy time.
type MWSubscription interface {
	Unsubscribe() error
}

// MWInbox is the bridge-level handle for one reply inbox.
type MWInbox interface {
	Address() string
	Close() error
}

// SubscriptionCallbacks mirrors the callback set a middleware subscription
// invokes: OnMessage for each delivered message, OnError for subscription-
// level errors (e.g. failed resubscribe), OnDestroy once teardown completes.
type SubscriptionCallbacks struct {
	OnMessage func(closure any, subject string, payload []byte)
	OnError   func(closure any, err error)
	OnDestroy func(closure any)
}

// InboxMessageCallback is invoked for each reply delivered to an Inbox.
type InboxMessageCallback func(closure any, payload []byte)

// InboxErrorCallback is invoked when an Inbox encounters a delivery error.
type InboxErrorCallback func(closure any, err error)

// TimerCallback is invoked on each tick of a Timer.
type TimerCallback func(closure any)
