package waiter

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Budget defaults
const (
	DefaultPollInterval       = 5 * time.Second
	DefaultTimeout            = 15 * time.Minute
	DefaultMultiplier         = 1.5
	DefaultMaxInterval        = 30 * time.Second
	DefaultMaxTransientErrors = 5
	DefaultJitter             = 0.2
)

// BudgetConfig is the relative form of a Budget, before the deadline is
// pinned to a start time. Zero fields take the defaults.
type BudgetConfig struct {
	PollInterval       time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	Timeout            time.Duration `json:"timeout" mapstructure:"timeout"`
	Multiplier         float64       `json:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	MaxInterval        time.Duration `json:"max_interval" mapstructure:"max_interval"`
	MaxTransientErrors int           `json:"max_transient_errors" mapstructure:"max_transient_errors"`
	Jitter             float64       `json:"jitter" mapstructure:"jitter"`
}

// DefaultBudgetConfig returns the default budget settings
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		PollInterval:       DefaultPollInterval,
		Timeout:            DefaultTimeout,
		Multiplier:         DefaultMultiplier,
		MaxInterval:        DefaultMaxInterval,
		MaxTransientErrors: DefaultMaxTransientErrors,
		Jitter:             DefaultJitter,
	}
}

// WithDefaults fills unset fields from DefaultBudgetConfig
func (c BudgetConfig) WithDefaults() BudgetConfig {
	d := DefaultBudgetConfig()
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.Multiplier == 0 {
		c.Multiplier = d.Multiplier
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = max(d.MaxInterval, c.PollInterval)
	}
	if c.MaxTransientErrors == 0 {
		c.MaxTransientErrors = d.MaxTransientErrors
	}
	return c
}

// Budget bounds a single wait. It is fixed when the wait starts.
type Budget struct {
	PollInterval       time.Duration
	Multiplier         float64
	MaxInterval        time.Duration
	Deadline           time.Time
	MaxTransientErrors int
	// Jitter is the fraction (0 <= j < 1) by which each delay is randomly
	// stretched or shrunk.
	Jitter float64
}

// NewBudget pins cfg to an absolute deadline measured from start
func NewBudget(start time.Time, cfg BudgetConfig) Budget {
	cfg = cfg.WithDefaults()
	return Budget{
		PollInterval:       cfg.PollInterval,
		Multiplier:         cfg.Multiplier,
		MaxInterval:        cfg.MaxInterval,
		Deadline:           start.Add(cfg.Timeout),
		MaxTransientErrors: cfg.MaxTransientErrors,
		Jitter:             cfg.Jitter,
	}
}

// Validate checks the budget is usable
func (b Budget) Validate() error {
	if b.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", b.PollInterval)
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %g", b.Multiplier)
	}
	if b.MaxInterval < b.PollInterval {
		return fmt.Errorf("max interval %s is shorter than poll interval %s", b.MaxInterval, b.PollInterval)
	}
	if b.Deadline.IsZero() {
		return errors.New("deadline is required")
	}
	if b.MaxTransientErrors < 1 {
		return fmt.Errorf("max transient errors must be at least 1, got %d", b.MaxTransientErrors)
	}
	if b.Jitter < 0 || b.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1), got %g", b.Jitter)
	}
	return nil
}

// Controller owns the polling cadence, the deadline and the transient error
// bound of one wait. It is not safe for concurrent use; every wait creates
// its own.
type Controller struct {
	budget    Budget
	current   time.Duration
	transient int
	random    func() float64
}

// NewController creates a controller for budget. random must return values
// in [0, 1); nil uses a freshly seeded source owned by this controller.
func NewController(budget Budget, random func() float64) *Controller {
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano())).Float64 // #nosec G404 - jitter does not need crypto randomness
	}
	return &Controller{
		budget:  budget,
		current: budget.PollInterval,
		random:  random,
	}
}

// Base returns the un-jittered interval the next delay is derived from
func (c *Controller) Base() time.Duration {
	return c.current
}

// Next returns the delay before the next poll and advances the backoff
func (c *Controller) Next() time.Duration {
	delay := c.jitter(c.current)

	next := time.Duration(float64(c.current) * c.budget.Multiplier)
	if next > c.budget.MaxInterval || next < c.current {
		next = c.budget.MaxInterval
	}
	c.current = next

	return delay
}

func (c *Controller) jitter(d time.Duration) time.Duration {
	if c.budget.Jitter > 0 {
		factor := 1 + c.budget.Jitter*(2*c.random()-1)
		d = time.Duration(float64(d) * factor)
	}
	if d > c.budget.MaxInterval {
		d = c.budget.MaxInterval
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Schedule returns the delay before the next poll. ok is false when that
// poll would land at or after the deadline, in which case no further
// observation must be taken and delay is the time left until the deadline.
func (c *Controller) Schedule(now time.Time) (delay time.Duration, ok bool) {
	delay = c.Next()
	if !now.Add(delay).Before(c.budget.Deadline) {
		return c.Remaining(now), false
	}
	return delay, true
}

// Deadline returns the absolute deadline of the wait
func (c *Controller) Deadline() time.Time {
	return c.budget.Deadline
}

// Remaining returns the time left until the deadline, never negative
func (c *Controller) Remaining(now time.Time) time.Duration {
	if r := c.budget.Deadline.Sub(now); r > 0 {
		return r
	}
	return 0
}

// Expired reports whether the deadline has been reached
func (c *Controller) Expired(now time.Time) bool {
	return !now.Before(c.budget.Deadline)
}

// RecordTransient counts a consecutive transient observation error and
// reports whether the bound is now exhausted.
func (c *Controller) RecordTransient() (count int, exhausted bool) {
	c.transient++
	return c.transient, c.transient >= c.budget.MaxTransientErrors
}

// ResetTransient clears the consecutive transient error count
func (c *Controller) ResetTransient() {
	c.transient = 0
}
