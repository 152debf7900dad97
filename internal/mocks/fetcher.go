package mocks

import (
	"context"
	"sync"

	"github.com/lattiam/ecswait/internal/waiter"
)

// FetchCall records one Fetch invocation
type FetchCall struct {
	CommonCall
	Reference waiter.DeploymentReference
}

// FetchStep is one scripted fetch response
type FetchStep struct {
	Record *waiter.DeploymentRecord
	Err    error
	// Before runs before the response is returned, e.g. to advance a clock
	Before func()
}

// ScriptedFetcher replays scripted responses in order. Once the script is
// exhausted the last step repeats.
type ScriptedFetcher struct {
	mu    sync.Mutex
	steps []FetchStep
	next  int
	calls *CallTracker[FetchCall]
}

// NewScriptedFetcher creates a fetcher that replays steps
func NewScriptedFetcher(steps ...FetchStep) *ScriptedFetcher {
	return &ScriptedFetcher{
		steps: steps,
		calls: NewCallTracker[FetchCall](),
	}
}

// AlwaysRecord returns a fetcher that always returns rec
func AlwaysRecord(rec *waiter.DeploymentRecord) *ScriptedFetcher {
	return NewScriptedFetcher(FetchStep{Record: rec})
}

// AlwaysError returns a fetcher that always fails with err
func AlwaysError(err error) *ScriptedFetcher {
	return NewScriptedFetcher(FetchStep{Err: err})
}

// Fetch implements waiter.Fetcher
func (f *ScriptedFetcher) Fetch(ctx context.Context, ref waiter.DeploymentReference) (*waiter.DeploymentRecord, error) {
	f.mu.Lock()
	var step FetchStep
	if len(f.steps) > 0 {
		idx := f.next
		if idx >= len(f.steps) {
			idx = len(f.steps) - 1
		} else {
			f.next++
		}
		step = f.steps[idx]
	}
	f.mu.Unlock()

	if step.Before != nil {
		step.Before()
	}

	err := step.Err
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	f.calls.RecordCall(FetchCall{
		CommonCall: NewCommonCall("Fetch", err),
		Reference:  ref,
	})
	if err != nil {
		return nil, err
	}
	return step.Record, nil
}

// CallCount returns how many times Fetch was called
func (f *ScriptedFetcher) CallCount() int {
	return f.calls.GetCallCount()
}

// Calls returns all recorded Fetch calls
func (f *ScriptedFetcher) Calls() []FetchCall {
	return f.calls.GetCalls()
}
