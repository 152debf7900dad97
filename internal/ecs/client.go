package ecs

import (
	"context"

	ecssdk "github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/lattiam/ecswait/internal/awsutil"
)

// DefaultMaxAttempts caps SDK retries inside a single fetch. Retrying
// across polls is the waiter's job.
const DefaultMaxAttempts = 2

// NewClient builds an ECS client for opts
func NewClient(ctx context.Context, opts awsutil.Options) (*ecssdk.Client, error) {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	cfg, err := awsutil.LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return ecssdk.NewFromConfig(cfg, func(o *ecssdk.Options) {
		if endpoint := awsutil.EndpointOverride(opts.Endpoint); endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	}), nil
}

// NewFetcherFromOptions builds a Fetcher backed by a real ECS client
func NewFetcherFromOptions(ctx context.Context, opts awsutil.Options, fetcherOpts ...FetcherOption) (*Fetcher, error) {
	client, err := NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewFetcher(client, fetcherOpts...), nil
}
