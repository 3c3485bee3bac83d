// Package solcore provides Observer-pattern interfaces for lifecycle
// notifications. Events use the CloudEvents specification for standardized
// format and interoperability with external monitoring systems.
package solcore

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of lifecycle events occurring on a Connection or
// its Sessions. Observers register with a Subject to receive notifications.
type Observer interface {
	// OnEvent is called when a subscribed-to event occurs. The context
	// can be used for cancellation and timeouts. Observers should handle
	// events quickly; NotifyObservers does not wait on slow observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration
	// tracking and debugging.
	ObserverID() string
}

// Subject is implemented by objects that emit lifecycle notifications.
// A Connection implements Subject so callers can observe session and
// object lifecycle without polling the SynchronizedKeyedMaps directly.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty the
	// observer receives every event type emitted by this Subject.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent: unregistering
	// an observer that was never registered is not an error.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers event to every matching registered
	// observer. Delivery failures from individual observers are discarded,
	// not propagated, so one bad observer cannot block the others.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for debugging/monitoring.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for the lifecycle events solcore emits. These follow
// the CloudEvents reverse-domain-notation convention.
const (
	// Connection lifecycle
	EventTypeConnectionCreated   = "com.solcore.connection.created"
	EventTypeConnectionDestroyed = "com.solcore.connection.destroyed"

	// Session lifecycle
	EventTypeSessionCreated    = "com.solcore.session.created"
	EventTypeSessionShutdown   = "com.solcore.session.shutdown"
	EventTypeSessionDestroyed  = "com.solcore.session.destroyed"
	EventTypeSessionReapSwept  = "com.solcore.session.reaped"

	// Subscription lifecycle
	EventTypeSubscriptionCreated   = "com.solcore.subscription.created"
	EventTypeSubscriptionShutdown  = "com.solcore.subscription.shutdown"
	EventTypeSubscriptionDestroyed = "com.solcore.subscription.destroyed"

	// Inbox lifecycle
	EventTypeInboxCreated   = "com.solcore.inbox.created"
	EventTypeInboxShutdown  = "com.solcore.inbox.shutdown"
	EventTypeInboxDestroyed = "com.solcore.inbox.destroyed"

	// Timer lifecycle
	EventTypeTimerCreated   = "com.solcore.timer.created"
	EventTypeTimerShutdown  = "com.solcore.timer.shutdown"
	EventTypeTimerDestroyed = "com.solcore.timer.destroyed"
)

// FunctionalObserver adapts a plain function into an Observer, for callers
// that don't want to define a named type for a one-off subscription.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver builds an Observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string { return f.id }
