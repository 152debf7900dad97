package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lattiam/ecswait/internal/waiter"
)

var webRef = waiter.DeploymentReference{Cluster: "prod", Service: "web"}

func TestCollector_RecordWaitLifecycle(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	c.OnPoll("wait-1", webRef, waiter.Classification{Phase: waiter.PhasePending})

	m := c.Snapshot()
	assert.Equal(t, int64(1), m.WaitsStarted)
	assert.Equal(t, 1, m.ActiveWaits)
	assert.Equal(t, int64(0), m.WaitsFinished)

	c.OnPoll("wait-1", webRef, waiter.Classification{Phase: waiter.PhaseUnknown})
	c.OnTransientError("wait-1", webRef, 1, errors.New("throttled"))
	c.OnPoll("wait-1", webRef, waiter.Classification{Phase: waiter.PhaseCompleted})
	c.OnResult(waiter.Result{Phase: waiter.PhaseCompleted, Reference: webRef, WaitID: "wait-1", Elapsed: 20 * time.Second})

	m = c.Snapshot()
	assert.Equal(t, int64(1), m.WaitsStarted)
	assert.Equal(t, int64(1), m.WaitsFinished)
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, 0, m.ActiveWaits)
	assert.Equal(t, int64(3), m.Polls)
	assert.Equal(t, int64(1), m.UnknownPolls)
	assert.Equal(t, int64(1), m.TransientErrors)
	assert.Equal(t, 20*time.Second, m.AverageWaitTime)
	assert.Equal(t, 20*time.Second, m.MaxWaitTime)
}

func TestCollector_CountsOutcomesByPhase(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	outcomes := []struct {
		phase   waiter.Phase
		elapsed time.Duration
	}{
		{waiter.PhaseCompleted, 10 * time.Second},
		{waiter.PhaseFailed, 20 * time.Second},
		{waiter.PhaseFailed, 30 * time.Second},
		{waiter.PhaseTimedOut, 60 * time.Second},
		{waiter.PhaseAbandoned, 0},
	}
	for i, o := range outcomes {
		c.OnResult(waiter.Result{
			Phase:     o.phase,
			Reference: webRef,
			WaitID:    fmt.Sprintf("wait-%d", i),
			Elapsed:   o.elapsed,
		})
	}

	m := c.Snapshot()
	assert.Equal(t, int64(5), m.WaitsStarted)
	assert.Equal(t, int64(5), m.WaitsFinished)
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(2), m.Failed)
	assert.Equal(t, int64(1), m.TimedOut)
	assert.Equal(t, int64(1), m.Abandoned)
	assert.Equal(t, 24*time.Second, m.AverageWaitTime)
	assert.Equal(t, 60*time.Second, m.MaxWaitTime)
}

func TestCollector_DurationSamplesAreBounded(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	for i := 0; i < maxDurationSamples+50; i++ {
		c.OnResult(waiter.Result{Phase: waiter.PhaseCompleted, WaitID: fmt.Sprintf("wait-%d", i), Elapsed: time.Second})
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.waitDurations, maxDurationSamples)
}

func TestCollector_ConcurrentWaits(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	const waits = 50
	var wg sync.WaitGroup
	for i := 0; i < waits; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				c.OnPoll(id, webRef, waiter.Classification{Phase: waiter.PhaseInProgress})
			}
			c.OnResult(waiter.Result{Phase: waiter.PhaseCompleted, WaitID: id, Elapsed: time.Second})
		}(fmt.Sprintf("wait-%d", i))
	}
	wg.Wait()

	m := c.Snapshot()
	assert.Equal(t, int64(waits), m.WaitsStarted)
	assert.Equal(t, int64(waits), m.Completed)
	assert.Equal(t, int64(waits*4), m.Polls)
	assert.Equal(t, 0, m.ActiveWaits)
}

func TestCollector_Reset(t *testing.T) {
	t.Parallel()
	c := NewCollector()

	c.OnPoll("wait-1", webRef, waiter.Classification{Phase: waiter.PhasePending})
	c.OnPoll("wait-2", webRef, waiter.Classification{Phase: waiter.PhasePending})
	c.OnResult(waiter.Result{Phase: waiter.PhaseFailed, WaitID: "wait-1", Elapsed: time.Minute})

	c.Reset()

	m := c.Snapshot()
	assert.Equal(t, int64(0), m.WaitsStarted)
	assert.Equal(t, int64(0), m.Failed)
	assert.Equal(t, int64(0), m.Polls)
	assert.Equal(t, 0, m.ActiveWaits)
	assert.Equal(t, time.Duration(0), m.AverageWaitTime)
}
