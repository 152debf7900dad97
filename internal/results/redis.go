package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lattiam/ecswait/internal/waiter"
)

const redisKeyPrefix = "ecswait:result:"

// RedisStore keeps results as JSON strings that expire after a TTL
type RedisStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisStore creates a store on an existing client. A zero ttl keeps
// results forever.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl, now: time.Now}
}

// NewRedisStoreFromURL parses url and connects
func NewRedisStoreFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

func resultKey(key string) string {
	return redisKeyPrefix + key
}

// Put implements Store
func (r *RedisStore) Put(ctx context.Context, res waiter.Result) error {
	rec, err := NewRecord(res, r.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := r.redis.Set(ctx, resultKey(rec.Key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, ref waiter.DeploymentReference) (*Record, error) {
	data, err := r.redis.Get(ctx, resultKey(ref.Key())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &rec, nil
}

// List implements Store. Keys are walked with SCAN rather than KEYS.
func (r *RedisStore) List(ctx context.Context) ([]*Record, error) {
	var out []*Record
	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan results: %w", err)
		}
		for _, key := range keys {
			data, err := r.redis.Get(ctx, key).Bytes()
			if err != nil {
				continue // expired between SCAN and GET
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			out = append(out, &rec)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sortRecords(out)
	return out, nil
}

// Delete implements Store
func (r *RedisStore) Delete(ctx context.Context, ref waiter.DeploymentReference) error {
	if err := r.redis.Del(ctx, resultKey(ref.Key())).Err(); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

// Close implements Store
func (r *RedisStore) Close() error {
	return r.redis.Close()
}
