package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/lattiam/ecswait/pkg/logging"
)

// Fetcher reads the current deployment record of a service. It returns a
// *ConfigurationError when the target does not exist; any other error is
// treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context, ref DeploymentReference) (*DeploymentRecord, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, ref DeploymentReference) (*DeploymentRecord, error)

// Fetch implements Fetcher
func (f FetcherFunc) Fetch(ctx context.Context, ref DeploymentReference) (*DeploymentRecord, error) {
	return f(ctx, ref)
}

// Waiter runs waits against a Fetcher. A Waiter holds no per-wait state
// and can serve any number of concurrent Await calls.
type Waiter struct {
	fetcher   Fetcher
	clock     Clock
	observer  Observer
	logger    *logging.Logger
	newRandom func() func() float64
}

// Option configures a Waiter
type Option func(*Waiter)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(w *Waiter) { w.clock = c }
}

// WithObserver registers an observer for wait lifecycle callbacks
func WithObserver(o Observer) Option {
	return func(w *Waiter) { w.observer = o }
}

// WithLogger replaces the default waiter logger
func WithLogger(l *logging.Logger) Option {
	return func(w *Waiter) { w.logger = l }
}

// WithRandomFactory sets how each wait obtains its jitter source. The
// factory is called once per wait so sources are never shared.
func WithRandomFactory(f func() func() float64) Option {
	return func(w *Waiter) { w.newRandom = f }
}

// New creates a Waiter
func New(fetcher Fetcher, opts ...Option) *Waiter {
	w := &Waiter{
		fetcher:   fetcher,
		clock:     RealClock(),
		observer:  NopObserver{},
		logger:    logging.Waiter,
		newRandom: func() func() float64 { return nil },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Await blocks until the referenced deployment reaches a terminal phase,
// the budget deadline passes, or ctx is canceled. It always returns a
// Result with a terminal phase. The error is non-nil only for
// configuration errors, which also yield a FAILED result.
func (w *Waiter) Await(ctx context.Context, ref DeploymentReference, budget Budget) (Result, error) {
	run := &waitRun{
		Waiter: w,
		ref:    ref,
		result: Result{
			Reference: ref,
			WaitID:    newWaitID(),
			StartedAt: w.clock.Now(),
		},
	}
	run.log = w.logger.WithFields(map[string]interface{}{
		"wait_id": run.result.WaitID,
		"target":  ref.Key(),
	})

	if err := ref.Validate(); err != nil {
		cfgErr := NewConfigurationError(ref, err.Error(), nil)
		return run.finish(PhaseFailed, cfgErr.Error()), cfgErr
	}
	if err := budget.Validate(); err != nil {
		cfgErr := NewConfigurationError(ref, "invalid wait budget", err)
		return run.finish(PhaseFailed, cfgErr.Error()), cfgErr
	}

	run.log.Debug("Waiting for deployment until %s", budget.Deadline.Format(time.RFC3339))
	return run.loop(ctx, NewController(budget, w.newRandom()))
}

// AwaitFor is Await with the budget pinned to the waiter's clock at call time
func (w *Waiter) AwaitFor(ctx context.Context, ref DeploymentReference, cfg BudgetConfig) (Result, error) {
	return w.Await(ctx, ref, NewBudget(w.clock.Now(), cfg))
}

// waitRun is the state of one Await call
type waitRun struct {
	*Waiter
	ref       DeploymentReference
	result    Result
	log       *logging.Logger
	lastPhase Phase
	// pinned is the last sighting of ref.DeploymentID, nil until it appears
	pinned *Deployment
}

func (r *waitRun) loop(ctx context.Context, ctrl *Controller) (Result, error) {
	for {
		if ctx.Err() != nil {
			return r.abandoned(ctx), nil
		}
		if ctrl.Expired(r.clock.Now()) {
			return r.timedOut(), nil
		}

		rec, err := r.fetcher.Fetch(ctx, r.ref)
		r.result.Polls++

		// results that arrive after cancellation or the deadline are discarded
		if ctx.Err() != nil {
			return r.abandoned(ctx), nil
		}
		if ctrl.Expired(r.clock.Now()) {
			return r.timedOut(), nil
		}

		if err != nil {
			if IsConfigurationError(err) {
				r.log.Error("Wait target cannot be observed: %v", err)
				return r.finish(PhaseFailed, err.Error()), err
			}
			attempt, exhausted := ctrl.RecordTransient()
			r.observer.OnTransientError(r.result.WaitID, r.ref, attempt, err)
			r.log.Warn("Transient error observing deployment (attempt %d/%d): %v",
				attempt, ctrl.budget.MaxTransientErrors, err)
			if exhausted {
				return r.finish(PhaseFailed, MsgLostVisibility), nil
			}
		} else {
			ctrl.ResetTransient()
			if res, done := r.observe(rec); done {
				return res, nil
			}
		}

		delay, ok := ctrl.Schedule(r.clock.Now())
		if !ok {
			r.log.Debug("Next poll would pass the deadline, waiting %s for it", delay)
		}
		if !r.sleep(ctx, delay) {
			return r.abandoned(ctx), nil
		}
	}
}

// observe classifies rec and returns the final result when it is terminal
func (r *waitRun) observe(rec *DeploymentRecord) (Result, bool) {
	c := ClassifyTracked(rec, r.ref, r.result.StartedAt, r.pinned)
	r.track(rec)
	if c.DeploymentID != "" {
		r.result.DeploymentID = c.DeploymentID
	}

	r.observer.OnPoll(r.result.WaitID, r.ref, c)
	if c.Phase != r.lastPhase {
		r.observer.OnPhaseChange(r.result.WaitID, r.ref, r.lastPhase, c.Phase)
		r.lastPhase = c.Phase
	}

	if c.Phase == PhaseUnknown {
		r.log.Warn("Could not classify deployment record, continuing to wait: %s", c.Reason)
	} else {
		r.log.Debug("Deployment %s is %s", c.DeploymentID, c.Phase)
	}

	if c.Phase.IsTerminal() {
		return r.finish(c.Phase, c.Message), true
	}
	return Result{}, false
}

// track remembers the pinned deployment's latest state
func (r *waitRun) track(rec *DeploymentRecord) {
	if r.ref.DeploymentID == "" || rec == nil {
		return
	}
	if d, ok := rec.Find(r.ref.DeploymentID); ok {
		r.pinned = &d
	}
}

func (r *waitRun) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(d):
		return true
	}
}

func (r *waitRun) timedOut() Result {
	elapsed := r.clock.Now().Sub(r.result.StartedAt)
	return r.finish(PhaseTimedOut,
		fmt.Sprintf("timed out waiting for deployment to complete after %s", formatElapsed(elapsed)))
}

func (r *waitRun) abandoned(ctx context.Context) Result {
	elapsed := r.clock.Now().Sub(r.result.StartedAt)
	return r.finish(PhaseAbandoned,
		fmt.Sprintf("wait abandoned after %s: %v", formatElapsed(elapsed), context.Cause(ctx)))
}

func (r *waitRun) finish(phase Phase, message string) Result {
	r.result.Phase = phase
	r.result.Message = message
	if phase == PhaseCompleted {
		r.result.Message = ""
	}
	r.result.FinishedAt = r.clock.Now()
	r.result.Elapsed = r.result.FinishedAt.Sub(r.result.StartedAt)

	switch phase {
	case PhaseCompleted:
		r.log.Info("Deployment %s completed after %s (%d polls)",
			r.result.DeploymentID, formatElapsed(r.result.Elapsed), r.result.Polls)
	case PhaseAbandoned:
		r.log.Warn("Wait abandoned: %s", r.result.Message)
	default:
		r.log.Error("Deployment wait ended with %s: %s", phase, r.result.Message)
	}

	r.observer.OnResult(r.result)
	return r.result
}

// formatElapsed rounds to whole seconds, or milliseconds below a second
func formatElapsed(d time.Duration) string {
	if d >= time.Second {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Millisecond).String()
}

func newWaitID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Sprintf("wait-%d", time.Now().UnixNano())
	}
	return id
}
