// Package memdriver is an in-process reference Bridge implementation used
// by solcore's own test suite and by callers prototyping against solcore
// without a real broker: a subject registry protected by a mutex, a
// per-queue goroutine draining a buffered channel of closures, and
// wildcard matching on a trailing "*".
package memdriver

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/solclient-go/solcore"
	"github.com/solclient-go/solcore/internal/chanqueue"
)

const defaultQueueBuffer = 256

// Broker is the shared in-process message bus multiple Driver instances
// can attach to, so a test can create two Connections that actually talk
// to each other. A Broker obtained via NewBroker is ready to use; the zero
// value is not, since its subscriber and inbox maps are nil.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	inboxes     map[string]*memInbox
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]map[*subscriber]struct{}),
		inboxes:     make(map[string]*memInbox),
	}
}

type subscriber struct {
	pattern string
	onMsg   func(subject string, payload []byte)
	onErr   func(err error)
	queue   *chanqueue.Queue
}

// Publish delivers payload to every subscriber whose pattern matches
// subject, and to a registered inbox if subject names one.
func (b *Broker) Publish(subject string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, subs := range b.subscribers {
		if !matches(pattern, subject) {
			continue
		}
		for s := range subs {
			sub := s
			_ = sub.queue.Enqueue(func() {
				if sub.onMsg != nil {
					sub.onMsg(subject, payload)
				}
			})
		}
	}
	if ib, ok := b.inboxes[subject]; ok {
		_ = ib.queue.Enqueue(func() {
			if ib.onMsg != nil {
				ib.onMsg(payload)
			}
		})
	}
}

func matches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(subject, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

func (b *Broker) addSubscriber(pattern string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[pattern]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subscribers[pattern] = set
	}
	set[sub] = struct{}{}
}

func (b *Broker) removeSubscriber(pattern string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscribers[pattern]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subscribers, pattern)
		}
	}
}

func (b *Broker) addInbox(address string, ib *memInbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes[address] = ib
}

func (b *Broker) removeInbox(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inboxes, address)
}

// Driver adapts a Broker into solcore's Bridge interface.
type Driver struct {
	broker      *Broker
	queueBuffer int
	closed      atomic.Bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithQueueBuffer sets the channel depth of every Queue this Driver
// allocates, typically from ConnectionConfig.QueueBuffer.
func WithQueueBuffer(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.queueBuffer = n
		}
	}
}

// New returns a Driver backed by broker. Pass the same broker to multiple
// New calls to have several Connections share one in-process bus; pass a
// fresh NewBroker() for an isolated test.
func New(broker *Broker, opts ...Option) *Driver {
	d := &Driver{broker: broker, queueBuffer: defaultQueueBuffer}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Open(ctx context.Context) error {
	if d.closed.Load() {
		return solcore.ErrPlatform
	}
	return nil
}

func (d *Driver) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *Driver) NewQueue() (solcore.Queue, error) {
	return chanqueue.New(d.queueBuffer), nil
}

func (d *Driver) Subscribe(q solcore.Queue, source, symbol, transport string, onMessage func(subject string, payload []byte), onError func(err error)) (solcore.MWSubscription, error) {
	mq, ok := q.(*chanqueue.Queue)
	if !ok {
		return nil, solcore.ErrInvalidArg
	}
	pattern := symbol
	if source != "" {
		pattern = source + "." + symbol
	}
	sub := &subscriber{pattern: pattern, onMsg: onMessage, onErr: onError, queue: mq}
	d.broker.addSubscriber(pattern, sub)
	return &memSubscription{broker: d.broker, sub: sub}, nil
}

func (d *Driver) NewInbox(q solcore.Queue, transport string, onMessage func(payload []byte), onError func(err error)) (solcore.MWInbox, error) {
	mq, ok := q.(*chanqueue.Queue)
	if !ok {
		return nil, solcore.ErrInvalidArg
	}
	address := "_INBOX." + uuid.NewString()
	ib := &memInbox{address: address, onMsg: onMessage, onErr: onError, queue: mq, broker: d.broker}
	d.broker.addInbox(address, ib)
	return ib, nil
}

type memSubscription struct {
	broker *Broker
	sub    *subscriber
}

func (s *memSubscription) Unsubscribe() error {
	s.broker.removeSubscriber(s.sub.pattern, s.sub)
	return nil
}

type memInbox struct {
	address string
	onMsg   func(payload []byte)
	onErr   func(err error)
	queue   *chanqueue.Queue
	broker  *Broker
}

func (ib *memInbox) Address() string { return ib.address }

func (ib *memInbox) Close() error {
	ib.broker.removeInbox(ib.address)
	return nil
}
