package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

// RedisCache is the distributed idempotency-cache variant, selected via
// DPM_IDEMPOTENCY_CACHE_BACKEND=REDIS for multi-instance deployments where
// an in-process LRU would let two instances disagree about a key's record.
// The underlying supportability.Store remains the durable source of truth;
// this is still only a fast-path cache, with a TTL so a crashed instance's
// entries age out rather than leaking.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing *redis.Client. ttl bounds how long a
// cached record survives before falling back to the durable store.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return "dpm:idempotency:" + key
}

// Get returns the cached record for key, if present and not expired.
func (c *RedisCache) Get(ctx context.Context, key string) (supportability.IdempotencyRecord, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return supportability.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return supportability.IdempotencyRecord{}, false, err
	}
	var rec supportability.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return supportability.IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

// Put stores rec with the cache's configured TTL.
func (c *RedisCache) Put(ctx context.Context, rec supportability.IdempotencyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(rec.Key), raw, c.ttl).Err()
}
