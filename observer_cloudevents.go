// Package solcore: CloudEvents helpers and the default Subject implementation
// used by Connection (Sessions emit through their Connection).
package solcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents SDK's Event type.
type CloudEvent = cloudevents.Event

// NewCloudEvent builds a CloudEvent with the required attributes set.
func NewCloudEvent(eventType, source string, data interface{}, metadata map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// LifecyclePayload is the structured body of every event solcore emits.
type LifecyclePayload struct {
	// Kind is the object kind: "connection", "session", "subscription", "inbox", "timer".
	Kind string `json:"kind"`
	// ID is the object's uuid-based identifier.
	ID string `json:"id"`
	// Action is the lifecycle transition: "created", "shutdown", "destroyed", "reaped".
	Action string `json:"action"`
	// ParentID is the owning Session/Connection ID, empty for Connection events.
	ParentID string `json:"parentId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewLifecycleEvent builds a CloudEvent for a kind/action transition using the
// structured LifecyclePayload, and sets small routing-friendly extensions
// (lower-case alphanumeric only, per CloudEvents 1.0 section 3.1.1 — no
// hyphens or underscores permitted in extension names).
func NewLifecycleEvent(source, eventType, kind, id, parentID, action string, metadata map[string]interface{}) cloudevents.Event {
	payload := LifecyclePayload{
		Kind:      kind,
		ID:        id,
		Action:    action,
		ParentID:  parentID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	evt := cloudevents.NewEvent()
	evt.SetID(generateEventID())
	evt.SetSource(source)
	evt.SetType(eventType)
	evt.SetTime(payload.Timestamp)
	evt.SetSpecVersion(cloudevents.VersionV1)
	_ = evt.SetData(cloudevents.ApplicationJSON, payload)
	evt.SetExtension("objectkind", kind)
	evt.SetExtension("objectaction", action)
	if parentID != "" {
		evt.SetExtension("parentid", parentID)
	}
	return evt
}

// generateEventID returns a time-ordered unique identifier for CloudEvents.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates event against the CloudEvents specification.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("cloudevent validation failed: %w", err)
	}
	return nil
}

// HandleEventEmissionError standardizes handling of emission failures: it
// returns true when the error was the expected "no subject registered"
// case (or was logged), false when the caller still needs to handle it.
func HandleEventEmissionError(err error, logger Logger, source, eventType string) bool {
	if errors.Is(err, ErrNoSubjectForEventEmission) {
		return true
	}
	if logger != nil {
		logger.Debug("failed to emit lifecycle event", "source", source, "eventType", eventType, "error", err)
		return true
	}
	return false
}

// subjectImpl is the Subject implementation a Connection holds; Sessions
// emit through their Connection's.
type subjectImpl struct {
	mu        sync.RWMutex
	observers map[string]registeredObserver
}

type registeredObserver struct {
	observer     Observer
	eventTypes   map[string]struct{}
	registeredAt time.Time
}

func newSubject() *subjectImpl {
	return &subjectImpl{observers: make(map[string]registeredObserver)}
}

func (s *subjectImpl) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	filter := make(map[string]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		filter[et] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[observer.ObserverID()] = registeredObserver{
		observer:     observer,
		eventTypes:   filter,
		registeredAt: time.Now(),
	}
	return nil
}

func (s *subjectImpl) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, observer.ObserverID())
	return nil
}

func (s *subjectImpl) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	s.mu.RLock()
	targets := make([]Observer, 0, len(s.observers))
	for _, ro := range s.observers {
		if len(ro.eventTypes) == 0 {
			targets = append(targets, ro.observer)
			continue
		}
		if _, ok := ro.eventTypes[event.Type()]; ok {
			targets = append(targets, ro.observer)
		}
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return WrapStatus(StatusNotFound, ErrNoSubjectForEventEmission)
	}
	for _, obs := range targets {
		go func(o Observer) {
			_ = o.OnEvent(ctx, event)
		}(obs)
	}
	return nil
}

func (s *subjectImpl) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]ObserverInfo, 0, len(s.observers))
	for id, ro := range s.observers {
		types := make([]string, 0, len(ro.eventTypes))
		for t := range ro.eventTypes {
			types = append(types, t)
		}
		infos = append(infos, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: ro.registeredAt})
	}
	return infos
}
