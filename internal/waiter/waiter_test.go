package waiter_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiam/ecswait/internal/mocks"
	"github.com/lattiam/ecswait/internal/waiter"
)

const rollbackMessage = "(service web) (deployment ecs-svc/1) deployment failed: tasks failed to start. Rolling back to deployment ecs-svc/previous."

func fakeWaiter(fetcher waiter.Fetcher, opts ...waiter.Option) (*waiter.Waiter, *mocks.FakeClock) {
	clock := mocks.NewFakeClock(waitStart)
	opts = append([]waiter.Option{waiter.WithClock(clock)}, opts...)
	return waiter.New(fetcher, opts...), clock
}

func shortBudget(start time.Time) waiter.Budget {
	return waiter.NewBudget(start, waiter.BudgetConfig{
		PollInterval: time.Second,
		Multiplier:   2,
		MaxInterval:  10 * time.Second,
		Timeout:      time.Minute,
	})
}

func rollbackRecord(at time.Time) *waiter.DeploymentRecord {
	return mocks.WithEvents(mocks.RollingRecord("ecs-svc/1", 3, 1, 0, at),
		waiter.ServiceEvent{ID: "ev-1", CreatedAt: at.Add(time.Minute), Message: rollbackMessage})
}

func TestAwait_CompletesOnFirstSteadyObservation(t *testing.T) {
	t.Parallel()

	fetcher := mocks.AlwaysRecord(mocks.SteadyRecord("ecs-svc/1", 3, waitStart))
	w, clock := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseCompleted, res.Phase)
	assert.True(t, res.Succeeded())
	assert.Empty(t, res.Message)
	assert.Equal(t, "ecs-svc/1", res.DeploymentID)
	assert.Equal(t, 1, res.Polls)
	assert.NotEmpty(t, res.WaitID)
	assert.Equal(t, webRef, res.Reference)
	assert.Empty(t, clock.Sleeps())
}

func TestAwait_PollsUntilComplete(t *testing.T) {
	t.Parallel()

	fetcher := mocks.NewScriptedFetcher(
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 3, 0, 3, waitStart)},
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 3, 2, 1, waitStart)},
		mocks.FetchStep{Record: mocks.SteadyRecord("ecs-svc/1", 3, waitStart)},
	)
	w, clock := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseCompleted, res.Phase)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 3, fetcher.CallCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, 3*time.Second, res.Elapsed)
	for _, call := range fetcher.Calls() {
		assert.Equal(t, webRef, call.Reference)
	}
}

func TestAwait_RollbackEventFails(t *testing.T) {
	t.Parallel()

	w, _ := fakeWaiter(mocks.AlwaysRecord(rollbackRecord(waitStart)))

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseFailed, res.Phase)
	assert.Equal(t, rollbackMessage, res.Message)
	assert.Equal(t, 1, res.Polls)
}

func TestAwait_IsIdempotentForUnchangedState(t *testing.T) {
	t.Parallel()

	records := map[string]*waiter.DeploymentRecord{
		"completed": mocks.SteadyRecord("ecs-svc/1", 2, waitStart),
		"failed":    rollbackRecord(waitStart),
	}

	for name, rec := range records {
		rec := rec
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			w, _ := fakeWaiter(mocks.AlwaysRecord(rec))

			first, err := w.Await(context.Background(), webRef, shortBudget(waitStart))
			require.NoError(t, err)
			second, err := w.Await(context.Background(), webRef, shortBudget(waitStart))
			require.NoError(t, err)

			assert.Equal(t, first.Phase, second.Phase)
			assert.Equal(t, first.Message, second.Message)
			assert.NotEqual(t, first.WaitID, second.WaitID)
		})
	}
}

func TestAwait_TimesOutAtDeadline(t *testing.T) {
	t.Parallel()

	fetcher := mocks.AlwaysRecord(mocks.RollingRecord("ecs-svc/1", 3, 1, 2, waitStart))
	w, clock := fakeWaiter(fetcher)
	budget := waiter.NewBudget(waitStart, waiter.BudgetConfig{
		PollInterval: time.Second,
		Multiplier:   1.5,
		Timeout:      3 * time.Second,
	})

	res, err := w.Await(context.Background(), webRef, budget)

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseTimedOut, res.Phase)
	assert.Equal(t, "timed out waiting for deployment to complete after 3s", res.Message)
	assert.Equal(t, 3*time.Second, res.Elapsed)
	// polls at 0s, 1s and 2.5s; the next one would land past the deadline
	assert.Equal(t, 3, fetcher.CallCount())
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond, 500 * time.Millisecond}, clock.Sleeps())
}

func TestAwait_TimesOutInRealTime(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for several seconds")
	}
	t.Parallel()

	start := time.Now()
	fetcher := mocks.AlwaysRecord(mocks.RollingRecord("ecs-svc/1", 3, 1, 2, start))
	w := waiter.New(fetcher)
	budget := waiter.NewBudget(start, waiter.BudgetConfig{
		PollInterval: time.Second,
		Timeout:      3 * time.Second,
		Jitter:       waiter.DefaultJitter,
	})

	res, err := w.Await(context.Background(), webRef, budget)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseTimedOut, res.Phase)
	assert.GreaterOrEqual(t, elapsed, 3*time.Second)
	assert.Less(t, elapsed, 4*time.Second)
	assert.Contains(t, res.Message, "after 3s")
}

func TestAwait_TransientErrorBound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "classified transient", err: waiter.NewTransientError("DescribeServices", errors.New("ThrottlingException"))},
		{name: "unclassified error", err: errors.New("connection reset by peer")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fetcher := mocks.AlwaysError(tt.err)
			w, _ := fakeWaiter(fetcher)
			budget := waiter.NewBudget(waitStart, waiter.BudgetConfig{
				PollInterval:       time.Second,
				Timeout:            time.Hour,
				MaxTransientErrors: 5,
			})

			res, err := w.Await(context.Background(), webRef, budget)

			require.NoError(t, err)
			assert.Equal(t, waiter.PhaseFailed, res.Phase)
			assert.Equal(t, waiter.MsgLostVisibility, res.Message)
			assert.Equal(t, 5, fetcher.CallCount())
		})
	}
}

func TestAwait_SuccessfulObservationResetsTransientCount(t *testing.T) {
	t.Parallel()

	flaky := mocks.FetchStep{Err: waiter.NewTransientError("DescribeServices", errors.New("503"))}
	fetcher := mocks.NewScriptedFetcher(
		flaky, flaky, flaky, flaky,
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 2, 1, 1, waitStart)},
		flaky, flaky, flaky, flaky,
		mocks.FetchStep{Record: mocks.SteadyRecord("ecs-svc/1", 2, waitStart)},
	)
	w, _ := fakeWaiter(fetcher)
	budget := waiter.NewBudget(waitStart, waiter.BudgetConfig{
		PollInterval:       time.Second,
		Multiplier:         1,
		Timeout:            time.Hour,
		MaxTransientErrors: 5,
	})

	res, err := w.Await(context.Background(), webRef, budget)

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseCompleted, res.Phase)
	assert.Equal(t, 10, fetcher.CallCount())
}

func TestAwait_ConfigurationErrorFailsFast(t *testing.T) {
	t.Parallel()

	cfgErr := waiter.NewConfigurationError(webRef, "service not found", nil)
	fetcher := mocks.AlwaysError(cfgErr)
	w, clock := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))

	require.Error(t, err)
	var target *waiter.ConfigurationError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "service not found", target.Reason)
	assert.Equal(t, waiter.PhaseFailed, res.Phase)
	assert.Equal(t, err.Error(), res.Message)
	assert.Equal(t, 1, fetcher.CallCount())
	assert.Empty(t, clock.Sleeps())
}

func TestAwait_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ref    waiter.DeploymentReference
		budget waiter.Budget
	}{
		{name: "missing cluster", ref: waiter.DeploymentReference{Service: "web"}, budget: shortBudget(waitStart)},
		{name: "missing service", ref: waiter.DeploymentReference{Cluster: "prod"}, budget: shortBudget(waitStart)},
		{name: "zero budget", ref: webRef, budget: waiter.Budget{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fetcher := mocks.AlwaysRecord(mocks.SteadyRecord("ecs-svc/1", 1, waitStart))
			w, _ := fakeWaiter(fetcher)

			res, err := w.Await(context.Background(), tt.ref, tt.budget)

			require.Error(t, err)
			assert.True(t, waiter.IsConfigurationError(err))
			assert.Equal(t, waiter.PhaseFailed, res.Phase)
			assert.Zero(t, fetcher.CallCount())
		})
	}
}

func TestAwait_CanceledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := mocks.AlwaysRecord(mocks.SteadyRecord("ecs-svc/1", 1, waitStart))
	w, _ := fakeWaiter(fetcher)

	res, err := w.Await(ctx, webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseAbandoned, res.Phase)
	assert.Contains(t, res.Message, "wait abandoned after")
	assert.Contains(t, res.Message, context.Canceled.Error())
	assert.Zero(t, res.Polls)
}

func TestAwait_DiscardsObservationAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	fetcher := mocks.NewScriptedFetcher(
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 2, 1, 1, waitStart)},
		mocks.FetchStep{
			Record: mocks.SteadyRecord("ecs-svc/1", 2, waitStart),
			Before: func() { cancel(errors.New("pipeline stopped")) },
		},
	)
	w, _ := fakeWaiter(fetcher)

	res, err := w.Await(ctx, webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseAbandoned, res.Phase)
	assert.Contains(t, res.Message, "pipeline stopped")
	assert.Equal(t, 2, res.Polls)
}

func TestAwait_DiscardsObservationAfterDeadline(t *testing.T) {
	t.Parallel()

	clock := mocks.NewFakeClock(waitStart)
	fetcher := mocks.NewScriptedFetcher(mocks.FetchStep{
		Record: mocks.SteadyRecord("ecs-svc/1", 2, waitStart),
		Before: func() { clock.Advance(2 * time.Minute) },
	})
	w := waiter.New(fetcher, waiter.WithClock(clock))

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseTimedOut, res.Phase)
	assert.Equal(t, "timed out waiting for deployment to complete after 2m0s", res.Message)
}

func TestAwait_UnknownObservationsKeepWaiting(t *testing.T) {
	t.Parallel()

	draining := mocks.SteadyRecord("ecs-svc/1", 2, waitStart)
	draining.ServiceStatus = waiter.ServiceStatusDraining
	fetcher := mocks.NewScriptedFetcher(
		mocks.FetchStep{},
		mocks.FetchStep{Record: draining},
		mocks.FetchStep{Record: &waiter.DeploymentRecord{ServiceName: "web", ServiceStatus: waiter.ServiceStatusActive}},
		mocks.FetchStep{Record: mocks.SteadyRecord("ecs-svc/1", 2, waitStart)},
	)
	w, _ := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseCompleted, res.Phase)
	assert.Equal(t, 4, res.Polls)
}

func TestAwait_PinnedDeploymentNotYetListed(t *testing.T) {
	t.Parallel()

	pinned := waiter.DeploymentReference{Cluster: "prod", Service: "web", DeploymentID: "ecs-svc/new"}
	fetcher := mocks.NewScriptedFetcher(
		mocks.FetchStep{Record: mocks.SteadyRecord("ecs-svc/old", 2, waitStart.Add(-time.Hour))},
		mocks.FetchStep{Record: mocks.SteadyRecord("ecs-svc/new", 2, waitStart.Add(time.Second))},
	)
	w, _ := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), pinned, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseCompleted, res.Phase)
	assert.Equal(t, "ecs-svc/new", res.DeploymentID)
	assert.Equal(t, 2, res.Polls)
}

func TestAwait_UnknownPinnedDeploymentNeverFails(t *testing.T) {
	t.Parallel()

	pinned := waiter.DeploymentReference{Cluster: "prod", Service: "web", DeploymentID: "ecs-svc/typo"}
	fetcher := mocks.AlwaysRecord(mocks.SteadyRecord("ecs-svc/old", 2, waitStart.Add(-time.Hour)))
	w, _ := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), pinned, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseTimedOut, res.Phase)
	assert.Greater(t, res.Polls, 1)
}

func TestAwait_PinnedDeploymentRolledBack(t *testing.T) {
	t.Parallel()

	pinned := waiter.DeploymentReference{Cluster: "prod", Service: "web", DeploymentID: "ecs-svc/new"}
	rollback := mocks.SteadyRecord("ecs-svc/rollback", 2, waitStart.Add(2*time.Minute))
	rollback.Deployments[0].TaskDefinition = mocks.TaskDefinition("web", 1)
	fetcher := mocks.NewScriptedFetcher(
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/new", 2, 1, 1, waitStart)},
		mocks.FetchStep{Record: rollback},
	)
	w, _ := fakeWaiter(fetcher)

	res, err := w.Await(context.Background(), pinned, shortBudget(waitStart))

	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseFailed, res.Phase)
	assert.Equal(t, waiter.MsgSuperseded, res.Message)
	assert.Equal(t, "ecs-svc/new", res.DeploymentID)
	assert.Equal(t, 2, res.Polls)
}

type recordingObserver struct {
	mu        sync.Mutex
	polls     int
	changes   []string
	transient []int
	results   []waiter.Result
}

func (o *recordingObserver) OnPoll(string, waiter.DeploymentReference, waiter.Classification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls++
}

func (o *recordingObserver) OnPhaseChange(_ string, _ waiter.DeploymentReference, from, to waiter.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, fmt.Sprintf("%s->%s", from, to))
}

func (o *recordingObserver) OnTransientError(_ string, _ waiter.DeploymentReference, attempt int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transient = append(o.transient, attempt)
}

func (o *recordingObserver) OnResult(res waiter.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, res)
}

func TestAwait_NotifiesObservers(t *testing.T) {
	t.Parallel()

	fetcher := mocks.NewScriptedFetcher(
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 2, 0, 2, waitStart)},
		mocks.FetchStep{Err: errors.New("timeout")},
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 2, 1, 1, waitStart)},
		mocks.FetchStep{Record: mocks.RollingRecord("ecs-svc/1", 2, 1, 1, waitStart)},
		mocks.FetchStep{Record: mocks.SteadyRecord("ecs-svc/1", 2, waitStart)},
	)
	first, second := &recordingObserver{}, &recordingObserver{}
	w, _ := fakeWaiter(fetcher, waiter.WithObserver(waiter.Observers{first, second}))

	res, err := w.Await(context.Background(), webRef, shortBudget(waitStart))
	require.NoError(t, err)

	for _, obs := range []*recordingObserver{first, second} {
		assert.Equal(t, 4, obs.polls)
		assert.Equal(t, []string{"->PENDING", "PENDING->IN_PROGRESS", "IN_PROGRESS->COMPLETED"}, obs.changes)
		assert.Equal(t, []int{1}, obs.transient)
		require.Len(t, obs.results, 1)
		assert.Equal(t, res, obs.results[0])
	}
}

func TestAwait_ConcurrentWaitsAreIndependent(t *testing.T) {
	t.Parallel()

	var counters sync.Map
	fetcher := waiter.FetcherFunc(func(_ context.Context, ref waiter.DeploymentReference) (*waiter.DeploymentRecord, error) {
		v, _ := counters.LoadOrStore(ref.Key(), new(atomic.Int32))
		n := v.(*atomic.Int32).Add(1)
		now := time.Now()

		switch ref.Service {
		case "completes":
			if n < 3 {
				return mocks.RollingRecord("ecs-svc/ok", 2, n-1, 1, now), nil
			}
			return mocks.SteadyRecord("ecs-svc/ok", 2, now), nil
		case "rolls-back":
			if n < 2 {
				return mocks.RollingRecord("ecs-svc/bad", 2, 0, 2, now), nil
			}
			return rollbackRecord(now), nil
		default:
			return nil, waiter.NewConfigurationError(ref, "service not found", nil)
		}
	})
	w := waiter.New(fetcher)

	services := []string{"completes", "rolls-back", "missing"}
	want := map[string]waiter.Phase{
		"completes":  waiter.PhaseCompleted,
		"rolls-back": waiter.PhaseFailed,
		"missing":    waiter.PhaseFailed,
	}

	const perService = 8
	type outcome struct {
		ref waiter.DeploymentReference
		res waiter.Result
	}
	results := make(chan outcome, perService*len(services))

	var wg sync.WaitGroup
	for i := 0; i < perService; i++ {
		for _, svc := range services {
			ref := waiter.DeploymentReference{Cluster: fmt.Sprintf("cluster-%d", i), Service: svc}
			wg.Add(1)
			go func() {
				defer wg.Done()
				budget := waiter.NewBudget(time.Now(), waiter.BudgetConfig{
					PollInterval: 5 * time.Millisecond,
					MaxInterval:  20 * time.Millisecond,
					Timeout:      10 * time.Second,
					Jitter:       waiter.DefaultJitter,
				})
				res, _ := w.Await(context.Background(), ref, budget)
				results <- outcome{ref: ref, res: res}
			}()
		}
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for o := range results {
		assert.Equal(t, want[o.ref.Service], o.res.Phase, o.ref.Key())
		assert.Equal(t, o.ref, o.res.Reference)
		assert.False(t, seen[o.res.WaitID], "wait IDs must be unique")
		seen[o.res.WaitID] = true

		switch o.ref.Service {
		case "completes":
			assert.Equal(t, 3, o.res.Polls)
		case "rolls-back":
			assert.Equal(t, rollbackMessage, o.res.Message)
			assert.Equal(t, 2, o.res.Polls)
		}
	}
	assert.Len(t, seen, perService*len(services))
}
