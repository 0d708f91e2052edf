package resultcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freightpricing/analysisengine/analysiserr"
)

// RedisCache is the distributed Cache implementation, grounded on the
// teacher's cache/redis.go (prefix-scoped keys, SetNX-based locking,
// Lua scripts loaded once at construction time for atomic compare-and-set
// operations).
type RedisCache struct {
	client *redis.Client
	prefix string

	releaseScript *redis.Script
	publishScript *redis.Script
}

// RedisConfig mirrors the teacher's RedisConfig shape, trimmed to what
// the Result Cache needs.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	Prefix       string
}

// DefaultRedisConfig returns sane defaults for local development.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		DB:           0,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		Prefix:       "analysisengine",
	}
}

// NewRedisCache opens a connection and verifies it with Ping.
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("resultcache: connect to redis: %w", err)
	}

	return &RedisCache{
		client:        client,
		prefix:        config.Prefix,
		releaseScript: redis.NewScript(releaseLua),
		publishScript: redis.NewScript(publishLua),
	}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

// Ping verifies the Redis connection is alive, for use by a health checker.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) readyKey(fingerprint string) string {
	return c.prefix + ":ready:" + fingerprint
}

func (c *RedisCache) inflightKey(fingerprint string) string {
	return c.prefix + ":inflight:" + fingerprint
}

// TryClaim first checks the Ready space (a result may already exist),
// then attempts SETNX on the in-flight key. On contention it reads back
// the current owner/TTL to report HELD_BY_OTHER (spec.md §4.6).
func (c *RedisCache) TryClaim(ctx context.Context, fingerprint, ownerID string, leaseDuration time.Duration) (ClaimResult, error) {
	if resultID, ok, err := c.LookupReady(ctx, fingerprint); err != nil {
		return ClaimResult{}, err
	} else if ok {
		return ClaimResult{Outcome: ReadyNow, ResultID: resultID}, nil
	}

	key := c.inflightKey(fingerprint)
	claimed, err := c.client.SetNX(ctx, key, ownerID, leaseDuration).Result()
	if err != nil {
		return ClaimResult{}, analysiserr.Wrap(analysiserr.CacheUnavailable, "try_claim failed", err)
	}
	if claimed {
		return ClaimResult{Outcome: Claimed}, nil
	}

	owner, err := c.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return ClaimResult{}, analysiserr.Wrap(analysiserr.CacheUnavailable, "try_claim lost race reading owner", err)
	}
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return ClaimResult{}, analysiserr.Wrap(analysiserr.CacheUnavailable, "try_claim failed reading lease ttl", err)
	}

	return ClaimResult{Outcome: HeldByOther, Owner: owner, ExpiresAt: time.Now().Add(ttl)}, nil
}

// releaseLua deletes the in-flight key only if it is still owned by the
// caller, making Release a compare-and-delete.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end
`

func (c *RedisCache) Release(ctx context.Context, fingerprint, ownerID string) error {
	key := c.inflightKey(fingerprint)
	res, err := c.releaseScript.Run(ctx, c.client, []string{key}, ownerID).Int64()
	if err != nil {
		return analysiserr.Wrap(analysiserr.CacheUnavailable, "release failed", err)
	}
	if res == 0 {
		exists, err := c.client.Exists(ctx, key).Result()
		if err != nil {
			return analysiserr.Wrap(analysiserr.CacheUnavailable, "release failed checking key existence", err)
		}
		if exists == 0 {
			return nil // already released, e.g. by a racing publish_ready
		}
		return analysiserr.NotOwnerf("caller does not hold the in-flight lease for this fingerprint")
	}
	return nil
}

// publishLua writes the Ready-space entry and deletes the in-flight key
// atomically, matching spec.md §4.6's "publish_ready also releases
// in-flight".
const publishLua = `
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
redis.call('DEL', KEYS[2])
return 1
`

func (c *RedisCache) PublishReady(ctx context.Context, fingerprint, resultID string, ttl time.Duration) error {
	readyKey := c.readyKey(fingerprint)
	inflightKey := c.inflightKey(fingerprint)

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}

	_, err := c.publishScript.Run(ctx, c.client, []string{readyKey, inflightKey}, resultID, ttlSeconds).Result()
	if err != nil {
		return analysiserr.Wrap(analysiserr.CacheUnavailable, "publish_ready failed", err)
	}
	return nil
}

func (c *RedisCache) LookupReady(ctx context.Context, fingerprint string) (string, bool, error) {
	resultID, err := c.client.Get(ctx, c.readyKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, analysiserr.Wrap(analysiserr.CacheUnavailable, "lookup_ready failed", err)
	}
	return resultID, true, nil
}
