package results

import (
	"context"
	"fmt"

	"github.com/lattiam/ecswait/internal/awsutil"
	"github.com/lattiam/ecswait/internal/config"
)

// New opens the result store selected by cfg. AWS backends create their
// table or bucket on first use.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	rc := cfg.Results
	switch rc.Store {
	case config.ResultStoreNone:
		return Discard{}, nil
	case config.ResultStoreMemory:
		return NewMemoryStore(), nil
	case config.ResultStoreFile:
		return NewFileStore(rc.Path)
	case config.ResultStoreDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg.AWS.Options())
		if err != nil {
			return nil, err
		}
		store := NewDynamoDBStore(client, rc.DynamoDBTable, rc.TTL)
		if err := store.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.ResultStoreS3:
		client, err := NewS3Client(ctx, cfg.AWS.Options())
		if err != nil {
			return nil, err
		}
		store := NewS3Store(client, rc.S3Bucket, rc.S3Prefix)
		if err := store.EnsureBucket(ctx, cfg.AWS.Region, awsutil.IsLocalEndpoint(cfg.AWS.Endpoint)); err != nil {
			return nil, err
		}
		return store, nil
	case config.ResultStoreRedis:
		return NewRedisStoreFromURL(ctx, rc.RedisURL, rc.TTL)
	default:
		return nil, fmt.Errorf("invalid result store type: %s", rc.Store)
	}
}
