package results

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiam/ecswait/internal/waiter"
)

var (
	webRef    = waiter.DeploymentReference{Cluster: "prod", Service: "web"}
	pinnedRef = waiter.DeploymentReference{Cluster: "prod", Service: "api", DeploymentID: "ecs-svc/8123"}
)

func sampleResult(ref waiter.DeploymentReference, phase waiter.Phase, message string) waiter.Result {
	started := time.Date(2024, 6, 1, 9, 30, 0, 123000000, time.UTC)
	return waiter.Result{
		Phase:        phase,
		Message:      message,
		Reference:    ref,
		DeploymentID: "ecs-svc/8123",
		WaitID:       "6f1c1a52-0b7e-4d0a-9d55-3c1f4c1f7a10",
		Polls:        7,
		StartedAt:    started,
		FinishedAt:   started.Add(1500 * time.Millisecond),
		Elapsed:      1500 * time.Millisecond,
	}
}

// runStoreContract exercises the behavior every Store must share
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, webRef)
	require.ErrorIs(t, err, ErrNotFound)

	completed := sampleResult(webRef, waiter.PhaseCompleted, "")
	require.NoError(t, store.Put(ctx, completed))

	got, err := store.Get(ctx, webRef)
	require.NoError(t, err)
	assert.Equal(t, "prod/web", got.Key)
	assert.Equal(t, completed.Phase, got.Result.Phase)
	assert.Empty(t, got.Result.Message)
	assert.Equal(t, completed.Reference, got.Result.Reference)
	assert.Equal(t, completed.DeploymentID, got.Result.DeploymentID)
	assert.Equal(t, completed.WaitID, got.Result.WaitID)
	assert.Equal(t, completed.Polls, got.Result.Polls)
	assert.Equal(t, completed.Elapsed, got.Result.Elapsed)
	assert.True(t, completed.StartedAt.Equal(got.Result.StartedAt), "started at %s", got.Result.StartedAt)
	assert.True(t, completed.FinishedAt.Equal(got.Result.FinishedAt), "finished at %s", got.Result.FinishedAt)
	assert.False(t, got.RecordedAt.IsZero())

	// the latest result replaces the earlier one
	failed := sampleResult(webRef, waiter.PhaseFailed, "deployment superseded before completion")
	require.NoError(t, store.Put(ctx, failed))
	got, err = store.Get(ctx, webRef)
	require.NoError(t, err)
	assert.Equal(t, waiter.PhaseFailed, got.Result.Phase)
	assert.Equal(t, "deployment superseded before completion", got.Result.Message)

	// keys containing slashes round trip
	pinned := sampleResult(pinnedRef, waiter.PhaseTimedOut, "timed out waiting for deployment to complete after 15m0s")
	require.NoError(t, store.Put(ctx, pinned))
	got, err = store.Get(ctx, pinnedRef)
	require.NoError(t, err)
	assert.Equal(t, pinnedRef, got.Result.Reference)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "prod/api/ecs-svc/8123", records[0].Key)
	assert.Equal(t, "prod/web", records[1].Key)

	require.Error(t, store.Put(ctx, sampleResult(webRef, waiter.PhaseInProgress, "")))
	require.Error(t, store.Put(ctx, sampleResult(waiter.DeploymentReference{Service: "web"}, waiter.PhaseCompleted, "")))

	require.NoError(t, store.Delete(ctx, webRef))
	_, err = store.Get(ctx, webRef)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, webRef))

	require.NoError(t, store.Close())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestFileStore_SkipsForeignFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), sampleResult(webRef, waiter.PhaseCompleted, "")))

	require.NoError(t, writeFile(dir, "notes.txt", "hello"))
	require.NoError(t, writeFile(dir, "broken.json", "{"))

	records, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestNewFileStore_RequiresDirectory(t *testing.T) {
	t.Parallel()
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var store Store = Discard{}

	require.NoError(t, store.Put(ctx, sampleResult(webRef, waiter.PhaseCompleted, "")))
	_, err := store.Get(ctx, webRef)
	require.ErrorIs(t, err, ErrNotFound)
	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
