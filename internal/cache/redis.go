package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"quoteprovider/internal/quote"
)

const redisKeyPrefix = "quotes:"

// Redis stores snapshots in Redis so multiple instances share one cache.
// The entry keeps its own write timestamp: the Redis-side expiry only has
// to outlive the stale TTL, the age check stays in Get.
type Redis struct {
	client *redis.Client
	maxTTL time.Duration
}

// NewRedis wraps client as a Store. maxTTL bounds how long entries live
// server-side and must be at least the stale TTL.
func NewRedis(client *redis.Client, maxTTL time.Duration) *Redis {
	if maxTTL <= 0 {
		maxTTL = 10 * time.Minute
	}
	return &Redis{client: client, maxTTL: maxTTL}
}

type redisEntry struct {
	TS   time.Time     `json:"ts"`
	Data []quote.Quote `json:"data"`
}

func (r *Redis) Get(ctx context.Context, key string, maxAge time.Duration) ([]quote.Quote, bool) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		// redis.Nil and transport errors both read as a miss; the
		// aggregator treats the cache as best effort.
		return nil, false
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, false
	}
	if time.Since(e.TS) > maxAge {
		return nil, false
	}
	return e.Data, true
}

func (r *Redis) Put(ctx context.Context, key string, quotes []quote.Quote) {
	b, err := json.Marshal(redisEntry{TS: time.Now(), Data: quotes})
	if err != nil {
		return
	}
	// Best effort: a failed write just means the next request refetches.
	r.client.Set(ctx, redisKeyPrefix+key, b, r.maxTTL)
}
