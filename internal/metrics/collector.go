// Package metrics provides metrics collection for deployment waits.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattiam/ecswait/internal/waiter"
)

const maxDurationSamples = 1000

// WaitMetrics is a snapshot of the collector's counters
type WaitMetrics struct {
	WaitsStarted    int64         `json:"waits_started"`
	WaitsFinished   int64         `json:"waits_finished"`
	Completed       int64         `json:"completed"`
	Failed          int64         `json:"failed"`
	TimedOut        int64         `json:"timed_out"`
	Abandoned       int64         `json:"abandoned"`
	ActiveWaits     int           `json:"active_waits"`
	Polls           int64         `json:"polls"`
	UnknownPolls    int64         `json:"unknown_polls"`
	TransientErrors int64         `json:"transient_errors"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
	MaxWaitTime     time.Duration `json:"max_wait_time"`
	Uptime          time.Duration `json:"uptime"`
}

// Collector tracks wait metrics. It satisfies waiter.Observer and is safe
// to share between concurrent waits.
type Collector struct {
	mu sync.RWMutex

	// Counters
	waitsStarted    int64
	completed       int64
	failed          int64
	timedOut        int64
	abandoned       int64
	polls           int64
	unknownPolls    int64
	transientErrors int64

	// Timing
	waitDurations []time.Duration

	startTime time.Time

	// waitID -> struct{} for waits seen but not finished
	active sync.Map
}

var _ waiter.Observer = (*Collector)(nil)

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:     time.Now(),
		waitDurations: make([]time.Duration, 0, maxDurationSamples),
	}
}

func (c *Collector) track(waitID string) {
	if _, loaded := c.active.LoadOrStore(waitID, struct{}{}); !loaded {
		atomic.AddInt64(&c.waitsStarted, 1)
	}
}

// OnPoll implements waiter.Observer
func (c *Collector) OnPoll(waitID string, _ waiter.DeploymentReference, cl waiter.Classification) {
	c.track(waitID)
	atomic.AddInt64(&c.polls, 1)
	if cl.Phase == waiter.PhaseUnknown {
		atomic.AddInt64(&c.unknownPolls, 1)
	}
}

// OnPhaseChange implements waiter.Observer
func (c *Collector) OnPhaseChange(string, waiter.DeploymentReference, waiter.Phase, waiter.Phase) {}

// OnTransientError implements waiter.Observer
func (c *Collector) OnTransientError(waitID string, _ waiter.DeploymentReference, _ int, _ error) {
	c.track(waitID)
	atomic.AddInt64(&c.transientErrors, 1)
}

// OnResult implements waiter.Observer
func (c *Collector) OnResult(res waiter.Result) {
	c.track(res.WaitID)
	c.active.Delete(res.WaitID)

	switch res.Phase {
	case waiter.PhaseCompleted:
		atomic.AddInt64(&c.completed, 1)
	case waiter.PhaseFailed:
		atomic.AddInt64(&c.failed, 1)
	case waiter.PhaseTimedOut:
		atomic.AddInt64(&c.timedOut, 1)
	case waiter.PhaseAbandoned:
		atomic.AddInt64(&c.abandoned, 1)
	}

	c.mu.Lock()
	c.waitDurations = append(c.waitDurations, res.Elapsed)
	if len(c.waitDurations) > maxDurationSamples {
		c.waitDurations = c.waitDurations[len(c.waitDurations)-maxDurationSamples:]
	}
	c.mu.Unlock()
}

// Snapshot returns the current metrics
func (c *Collector) Snapshot() WaitMetrics {
	completed := atomic.LoadInt64(&c.completed)
	failed := atomic.LoadInt64(&c.failed)
	timedOut := atomic.LoadInt64(&c.timedOut)
	abandoned := atomic.LoadInt64(&c.abandoned)

	var active int
	c.active.Range(func(_, _ interface{}) bool {
		active++
		return true
	})

	c.mu.RLock()
	avg, longest := c.durationStatsNoLock()
	uptime := time.Since(c.startTime)
	c.mu.RUnlock()

	return WaitMetrics{
		WaitsStarted:    atomic.LoadInt64(&c.waitsStarted),
		WaitsFinished:   completed + failed + timedOut + abandoned,
		Completed:       completed,
		Failed:          failed,
		TimedOut:        timedOut,
		Abandoned:       abandoned,
		ActiveWaits:     active,
		Polls:           atomic.LoadInt64(&c.polls),
		UnknownPolls:    atomic.LoadInt64(&c.unknownPolls),
		TransientErrors: atomic.LoadInt64(&c.transientErrors),
		AverageWaitTime: avg,
		MaxWaitTime:     longest,
		Uptime:          uptime,
	}
}

// durationStatsNoLock returns average and maximum wait time without acquiring lock
func (c *Collector) durationStatsNoLock() (avg, longest time.Duration) {
	if len(c.waitDurations) == 0 {
		return 0, 0
	}

	var total time.Duration
	for _, d := range c.waitDurations {
		total += d
		if d > longest {
			longest = d
		}
	}

	return total / time.Duration(len(c.waitDurations)), longest
}

// Reset resets all metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	atomic.StoreInt64(&c.waitsStarted, 0)
	atomic.StoreInt64(&c.completed, 0)
	atomic.StoreInt64(&c.failed, 0)
	atomic.StoreInt64(&c.timedOut, 0)
	atomic.StoreInt64(&c.abandoned, 0)
	atomic.StoreInt64(&c.polls, 0)
	atomic.StoreInt64(&c.unknownPolls, 0)
	atomic.StoreInt64(&c.transientErrors, 0)

	c.waitDurations = c.waitDurations[:0]
	c.startTime = time.Now()

	c.active.Range(func(key, _ interface{}) bool {
		c.active.Delete(key)
		return true
	})
}
