package pipeline

import (
	"context"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/lattiam/ecswait/internal/results"
	"github.com/lattiam/ecswait/internal/waiter"
	"github.com/lattiam/ecswait/pkg/logging"
)

// DefaultConcurrency bounds how many waits RunAll runs at once
const DefaultConcurrency = 4

const recordTimeout = 10 * time.Second

// Lifecycle is the shape of a pipeline resource backed by a wait. Creating
// the resource blocks until the deployment settles; removing it does
// nothing because a wait owns no remote state.
type Lifecycle interface {
	BeginWait(ctx context.Context, in StepInput) (Outputs, error)
	IsTerminal(out Outputs) bool
	Remove(ctx context.Context, out Outputs) error
}

// Step runs waits and records every outcome in a result store
type Step struct {
	waiter      *waiter.Waiter
	store       results.Store
	base        waiter.BudgetConfig
	concurrency int
	logger      *logging.Logger
}

var _ Lifecycle = (*Step)(nil)

// StepOption configures a Step
type StepOption func(*Step)

// WithBaseBudget sets the budget used for fields a StepInput leaves unset
func WithBaseBudget(cfg waiter.BudgetConfig) StepOption {
	return func(s *Step) { s.base = cfg }
}

// WithConcurrency bounds RunAll
func WithConcurrency(n int) StepOption {
	return func(s *Step) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewStep creates a step. A nil store records nothing.
func NewStep(w *waiter.Waiter, store results.Store, opts ...StepOption) *Step {
	if store == nil {
		store = results.Discard{}
	}
	s := &Step{
		waiter:      w,
		store:       store,
		base:        waiter.DefaultBudgetConfig(),
		concurrency: DefaultConcurrency,
		logger:      logging.Pipeline,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run waits for the deployment described by in and records the result.
// The error is non-nil only for configuration errors; a failed deployment
// is reported through the result.
func (s *Step) Run(ctx context.Context, in StepInput) (waiter.Result, error) {
	res, err := s.waiter.AwaitFor(ctx, in.Reference(), in.BudgetConfig(s.base))
	s.record(ctx, res)
	return res, err
}

// BeginWait implements Lifecycle
func (s *Step) BeginWait(ctx context.Context, in StepInput) (Outputs, error) {
	res, err := s.Run(ctx, in)
	return OutputsFromResult(res), err
}

// IsTerminal implements Lifecycle
func (s *Step) IsTerminal(out Outputs) bool {
	phase, err := waiter.ParsePhase(out.Status)
	return err == nil && phase.IsTerminal()
}

// Remove implements Lifecycle
func (s *Step) Remove(context.Context, Outputs) error {
	return nil
}

func (s *Step) record(ctx context.Context, res waiter.Result) {
	if res.Reference.Validate() != nil || !res.Phase.IsTerminal() {
		return
	}

	// an abandoned wait still gets recorded
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.store.Put(ctx, res); err != nil {
		s.logger.WithCorrelation(res.WaitID).Warn("Failed to record result for %s: %v", res.Reference, err)
	}
}

// StepResult is the outcome of one input of a batch
type StepResult struct {
	Input  StepInput
	Result waiter.Result
	Err    error
}

// Gate returns the configuration error of the wait, if any, and otherwise
// the gate error of its result
func (r StepResult) Gate() error {
	if r.Err != nil {
		return r.Err
	}
	return Gate(r.Result)
}

// RunAll runs independent waits concurrently, at most the configured
// concurrency at a time. Results are returned in input order.
func (s *Step) RunAll(ctx context.Context, inputs []StepInput) []StepResult {
	out := make([]StepResult, len(inputs))
	if len(inputs) == 0 {
		return out
	}

	pool := workerpool.New(min(s.concurrency, len(inputs)))
	for i, in := range inputs {
		pool.Submit(func() {
			res, err := s.Run(ctx, in)
			out[i] = StepResult{Input: in, Result: res, Err: err}
		})
	}
	pool.StopWait()

	s.logger.Debug("Batch of %d waits finished", len(inputs))
	return out
}
