// Package events publishes wait lifecycle events to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/lattiam/ecswait/internal/waiter"
)

// EventType represents the type of wait event
type EventType string

const (
	// EventPolled is emitted after every classified observation
	EventPolled EventType = "polled"
	// EventPhaseChanged is emitted when the observed phase changes
	EventPhaseChanged EventType = "phase_changed"
	// EventTransientError is emitted when a fetch fails and the wait keeps going
	EventTransientError EventType = "transient_error"
	// EventResultReady is emitted once when the wait ends
	EventResultReady EventType = "result_ready"
)

// WaitEvent represents an event in the wait lifecycle
type WaitEvent struct {
	Type      EventType
	WaitID    string
	Reference waiter.DeploymentReference
	Timestamp time.Time

	// Event-specific data
	From           waiter.Phase
	To             waiter.Phase
	Classification *waiter.Classification
	Attempt        int
	Result         *waiter.Result
	Error          error
}

// EventHandler is a function that handles wait events
type EventHandler func(event WaitEvent)

// EventBus manages wait event subscriptions and dispatching. It satisfies
// waiter.Observer so it can be handed straight to a Waiter.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	synchronous bool
	inflight    sync.WaitGroup
	now         func() time.Time
}

var _ waiter.Observer = (*EventBus)(nil)

// NewEventBus creates an event bus that runs handlers on their own goroutines
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
		now:      time.Now,
	}
}

// NewSynchronousEventBus creates an event bus that calls handlers inline,
// in subscription order
func NewSynchronousEventBus() *EventBus {
	eb := NewEventBus()
	eb.synchronous = true
	return eb
}

// Subscribe registers a handler for specific event types
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish sends an event to all registered handlers
func (eb *EventBus) Publish(event WaitEvent) {
	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	synchronous := eb.synchronous
	eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}

	if synchronous {
		for _, handler := range handlers {
			handler(event)
		}
		return
	}

	for _, handler := range handlers {
		eb.inflight.Add(1)
		go func(h EventHandler) {
			defer eb.inflight.Done()
			h(event)
		}(handler)
	}
}

// Drain blocks until every asynchronously dispatched handler has returned
func (eb *EventBus) Drain() {
	eb.inflight.Wait()
}

// OnPoll implements waiter.Observer
func (eb *EventBus) OnPoll(waitID string, ref waiter.DeploymentReference, c waiter.Classification) {
	eb.Publish(WaitEvent{
		Type:           EventPolled,
		WaitID:         waitID,
		Reference:      ref,
		To:             c.Phase,
		Classification: &c,
	})
}

// OnPhaseChange implements waiter.Observer
func (eb *EventBus) OnPhaseChange(waitID string, ref waiter.DeploymentReference, from, to waiter.Phase) {
	eb.Publish(WaitEvent{
		Type:      EventPhaseChanged,
		WaitID:    waitID,
		Reference: ref,
		From:      from,
		To:        to,
	})
}

// OnTransientError implements waiter.Observer
func (eb *EventBus) OnTransientError(waitID string, ref waiter.DeploymentReference, attempt int, err error) {
	eb.Publish(WaitEvent{
		Type:      EventTransientError,
		WaitID:    waitID,
		Reference: ref,
		Attempt:   attempt,
		Error:     err,
	})
}

// OnResult implements waiter.Observer
func (eb *EventBus) OnResult(res waiter.Result) {
	eb.Publish(WaitEvent{
		Type:      EventResultReady,
		WaitID:    res.WaitID,
		Reference: res.Reference,
		To:        res.Phase,
		Result:    &res,
	})
}
