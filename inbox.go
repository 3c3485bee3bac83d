package solcore

// Inbox is a managed wrapper around one bridge-level reply address. Like
// Subscription, it may be created/destroyed from any goroutine, with
// message/error callbacks always run on its owning Session's dispatcher.
type Inbox struct {
	wrapperCore

	session   *Session
	mw        MWInbox
	onMessage InboxMessageCallback
	onError   InboxErrorCallback
	transport string
}

func newInbox(session *Session, closure any, errorCB InboxErrorCallback, msgCB InboxMessageCallback, transport string) *Inbox {
	return &Inbox{
		wrapperCore: newWrapperCore(closure, generateEventID()),
		session:     session,
		onMessage:   msgCB,
		onError:     errorCB,
		transport:   transport,
	}
}

// ID returns the inbox's debug/event-correlation identifier.
func (ib *Inbox) ID() string { return ib.id }

// Address returns the bridge-assigned reply address, once the inbox has
// been created against the bridge.
func (ib *Inbox) Address() string {
	if ib.mw == nil {
		return ""
	}
	return ib.mw.Address()
}

func (ib *Inbox) deliverMessage(payload []byte) {
	ib.guardedCallback(func() {
		if ib.onMessage != nil {
			ib.onMessage(ib.closure, payload)
		}
	})
}

func (ib *Inbox) deliverError(err error) {
	ib.guardedCallback(func() {
		if ib.onError != nil {
			ib.onError(ib.closure, err)
		}
	})
}

func (ib *Inbox) shutdown() {
	ib.markShutdown(func() {
		ib.onMessage = nil
		ib.onError = nil
	})
}

// destroy neutralizes the user callbacks immediately, then enqueues the
// destroy-event referencing this inbox onto the owning session's
// dispatcher queue, for the same reasons Subscription's destroy does:
// replies already queued ahead of the destroy-event find the gate closed,
// and callbackLock is only ever acquired by the dispatcher goroutine,
// never re-entered inline by a message callback that destroys its own
// inbox.
func (ib *Inbox) destroy() error {
	ib.markDestroyPending()
	run := func() {
		var closeErr error
		ib.finalize(func() {
			if ib.mw != nil {
				closeErr = ib.mw.Close()
			}
		})
		if closeErr != nil && ib.session != nil {
			ib.session.logError("inbox destroy", closeErr)
		}
	}
	if ib.session == nil || ib.session.queue == nil {
		run()
		return nil
	}
	return ib.session.queue.Enqueue(run)
}
