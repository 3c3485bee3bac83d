// Package natsbridge adapts a real github.com/nats-io/nats.go connection
// into solcore's Bridge interface: NATS subjects stand in for the
// middleware-level source/symbol addressing, and a NATS inbox subscription
// backs each Inbox. Every Queue/Dispatcher this driver hands out still
// runs on a local goroutine — NATS's own client already delivers
// asynchronously, so the dispatcher's job is purely to give solcore a
// single serialized point to invoke callbacks from, matching the session
// dispatcher contract every other Bridge driver honors.
package natsbridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/solclient-go/solcore"
	"github.com/solclient-go/solcore/internal/chanqueue"
)

const queueBuffer = 256

// Driver adapts a *nats.Conn into solcore.Bridge.
type Driver struct {
	conn   *nats.Conn
	closed atomic.Bool
}

// New wraps an already-connected *nats.Conn.
func New(conn *nats.Conn) *Driver {
	return &Driver{conn: conn}
}

// Dial connects to a NATS server at url and wraps the resulting connection.
func Dial(url string, opts ...nats.Option) (*Driver, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return New(conn), nil
}

func (d *Driver) Open(ctx context.Context) error {
	if d.conn == nil || !d.conn.IsConnected() {
		return solcore.ErrPlatform
	}
	return nil
}

func (d *Driver) Close() error {
	d.closed.Store(true)
	d.conn.Close()
	return nil
}

func (d *Driver) NewQueue() (solcore.Queue, error) {
	return chanqueue.New(queueBuffer), nil
}

func (d *Driver) Subscribe(q solcore.Queue, source, symbol, transport string, onMessage func(subject string, payload []byte), onError func(err error)) (solcore.MWSubscription, error) {
	nq, ok := q.(*chanqueue.Queue)
	if !ok {
		return nil, solcore.ErrInvalidArg
	}
	subject := symbol
	if source != "" {
		subject = source + "." + symbol
	}

	natsSub, err := d.conn.Subscribe(subject, func(msg *nats.Msg) {
		subj, payload := msg.Subject, msg.Data
		_ = nq.Enqueue(func() {
			if onMessage != nil {
				onMessage(subj, payload)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return &subscription{natsSub: natsSub}, nil
}

func (d *Driver) NewInbox(q solcore.Queue, transport string, onMessage func(payload []byte), onError func(err error)) (solcore.MWInbox, error) {
	nq, ok := q.(*chanqueue.Queue)
	if !ok {
		return nil, solcore.ErrInvalidArg
	}
	address := nats.NewInbox()
	natsSub, err := d.conn.Subscribe(address, func(msg *nats.Msg) {
		payload := msg.Data
		_ = nq.Enqueue(func() {
			if onMessage != nil {
				onMessage(payload)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("nats inbox subscribe: %w", err)
	}
	return &inbox{address: address, natsSub: natsSub}, nil
}

type subscription struct {
	natsSub *nats.Subscription
}

func (s *subscription) Unsubscribe() error {
	return s.natsSub.Unsubscribe()
}

type inbox struct {
	address string
	natsSub *nats.Subscription
}

func (ib *inbox) Address() string { return ib.address }
func (ib *inbox) Close() error    { return ib.natsSub.Unsubscribe() }
