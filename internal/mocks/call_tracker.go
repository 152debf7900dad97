// Package mocks provides test doubles for the waiter and its collaborators.
package mocks

import (
	"sync"
	"time"
)

// CallTracker records calls made to a test double
type CallTracker[T any] struct {
	mu    sync.RWMutex
	calls []T
}

// NewCallTracker creates an empty tracker
func NewCallTracker[T any]() *CallTracker[T] {
	return &CallTracker[T]{}
}

// RecordCall appends call to the history
func (ct *CallTracker[T]) RecordCall(call T) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.calls = append(ct.calls, call)
}

// GetCalls returns a copy of the call history
func (ct *CallTracker[T]) GetCalls() []T {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]T(nil), ct.calls...)
}

// GetCallCount returns the number of recorded calls
func (ct *CallTracker[T]) GetCallCount() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.calls)
}

// CommonCall holds the fields every recorded call carries
type CommonCall struct {
	Method string
	At     time.Time
	Error  error
}

// NewCommonCall stamps a call with the wall clock
func NewCommonCall(method string, err error) CommonCall {
	return CommonCall{Method: method, At: time.Now(), Error: err}
}
