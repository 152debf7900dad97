//go:build integration

package results

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattiam/ecswait/internal/awsutil"
	"github.com/lattiam/ecswait/internal/config"
	"github.com/lattiam/ecswait/internal/testutil"
)

func TestDynamoDBStore_LocalStack(t *testing.T) {
	t.Parallel()
	ls := testutil.SetupLocalStack(t)
	ctx := context.Background()

	cfg := config.NewConfig()
	cfg.AWS.Region = "us-east-1"
	cfg.AWS.Endpoint = ls.Endpoint
	cfg.Results.Store = config.ResultStoreDynamoDB
	cfg.Results.DynamoDBTable = fmt.Sprintf("ecswait-results-%d", time.Now().UnixNano())

	store, err := New(ctx, cfg)
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestS3Store_LocalStack(t *testing.T) {
	t.Parallel()
	ls := testutil.SetupLocalStack(t)
	ctx := context.Background()

	opts := awsutil.Options{Region: "us-east-1", Endpoint: ls.Endpoint}
	client, err := NewS3Client(ctx, opts)
	require.NoError(t, err)

	store := NewS3Store(client, fmt.Sprintf("ecswait-results-%d", time.Now().UnixNano()), "results/")
	require.NoError(t, store.EnsureBucket(ctx, opts.Region, true))
	runStoreContract(t, store)
}

func TestRedisStore_Container(t *testing.T) {
	t.Parallel()
	rc := testutil.SetupRedis(t)
	ctx := context.Background()

	store, err := NewRedisStoreFromURL(ctx, rc.URL, time.Hour)
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestRedisStore_ExpiresResults(t *testing.T) {
	t.Parallel()
	rc := testutil.SetupRedis(t)
	ctx := context.Background()

	store, err := NewRedisStoreFromURL(ctx, rc.URL, time.Second)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Put(ctx, sampleResult(webRef, "COMPLETED", "")))
	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, webRef)
		return err == ErrNotFound
	}, 5*time.Second, 100*time.Millisecond)
}
