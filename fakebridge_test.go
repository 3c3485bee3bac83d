package solcore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

// testCtx returns a background context, for the many solcore APIs that
// take one purely to bound a single bridge call.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

// fakeBridge is a minimal in-package Bridge used by the tests in this
// package. It never imports internal/memdriver or internal/chanqueue: a
// white-box test file living in package solcore cannot depend on a
// package that itself imports solcore without creating an import cycle,
// so the fixture (fakeQueue included) is kept local and deliberately
// small — enough to drive subscriptions, inboxes, and timers for
// assertions.
type fakeBridge struct {
	mu     sync.Mutex
	opened bool
	closed bool

	subs    []*fakeSubscription
	inboxes []*fakeInbox
}

func newFakeBridge() *fakeBridge { return &fakeBridge{} }

func (b *fakeBridge) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = true
	return nil
}

func (b *fakeBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBridge) NewQueue() (Queue, error) {
	return newFakeQueue(), nil
}

func (b *fakeBridge) Subscribe(q Queue, source, symbol, transport string, onMessage func(subject string, payload []byte), onError func(err error)) (MWSubscription, error) {
	fq := q.(*fakeQueue)
	sub := &fakeSubscription{queue: fq, onMessage: onMessage, onError: onError, symbol: symbol}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

func (b *fakeBridge) NewInbox(q Queue, transport string, onMessage func(payload []byte), onError func(err error)) (MWInbox, error) {
	fq := q.(*fakeQueue)
	ib := &fakeInbox{queue: fq, onMessage: onMessage, onError: onError, address: "_INBOX.fake"}
	b.mu.Lock()
	b.inboxes = append(b.inboxes, ib)
	b.mu.Unlock()
	return ib, nil
}

// deliver publishes payload on subject to every subscriber whose symbol
// equals subject, synchronously enqueuing the delivery onto that
// subscriber's own queue.
func (b *fakeBridge) deliver(subject string, payload []byte) {
	b.mu.Lock()
	subs := append([]*fakeSubscription(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		if s.symbol != subject || s.unsubscribed.Load() {
			continue
		}
		s.queue.Enqueue(func() {
			if s.onMessage != nil {
				s.onMessage(subject, payload)
			}
		})
	}
}

type fakeSubscription struct {
	queue        *fakeQueue
	onMessage    func(subject string, payload []byte)
	onError      func(err error)
	symbol       string
	unsubscribed atomic.Bool
}

func (s *fakeSubscription) Unsubscribe() error {
	s.unsubscribed.Store(true)
	return nil
}

type fakeInbox struct {
	queue     *fakeQueue
	onMessage func(payload []byte)
	onError   func(err error)
	address   string
	closed    atomic.Bool
}

func (ib *fakeInbox) Address() string { return ib.address }
func (ib *fakeInbox) Close() error {
	ib.closed.Store(true)
	return nil
}

func (ib *fakeInbox) deliver(payload []byte) {
	ib.queue.Enqueue(func() {
		if ib.onMessage != nil {
			ib.onMessage(payload)
		}
	})
}

// fakeQueue runs enqueued work on a single background goroutine, exactly
// like every real Bridge's Queue/Dispatcher pair, so callback-lock gating
// races are exercised the same way a real dispatcher would trigger them.
type fakeQueue struct {
	jobs    chan func()
	done    chan struct{}
	started atomic.Bool
	depth   atomic.Int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(chan func(), 256), done: make(chan struct{})}
}

func (q *fakeQueue) Enqueue(fn func()) error {
	q.depth.Add(1)
	q.jobs <- fn
	return nil
}

func (q *fakeQueue) Dispatcher() Dispatcher { return q }
func (q *fakeQueue) Depth() int             { return int(q.depth.Load()) }

func (q *fakeQueue) Start() error {
	if !q.started.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		for {
			select {
			case fn := <-q.jobs:
				fn()
				q.depth.Add(-1)
			case <-q.done:
				return
			}
		}
	}()
	return nil
}

func (q *fakeQueue) Stop(ctx context.Context) error {
	if !q.started.CompareAndSwap(true, false) {
		return nil
	}
	close(q.done)
	return nil
}
