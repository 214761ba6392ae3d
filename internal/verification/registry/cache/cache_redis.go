package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bobinator/internal/verification/registry/providers"
)

const redisKeyPrefix = "bobinator:registry:search:"

// Redis is a SearchCache shared across server instances; entries expire by TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key string) ([]providers.SearchHit, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find search cache: %w", err)
	}

	var hits []providers.SearchHit
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, false, fmt.Errorf("decode search cache: %w", err)
	}
	return hits, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, hits []providers.SearchHit) error {
	if hits == nil {
		hits = []providers.SearchHit{}
	}
	payload, err := json.Marshal(hits)
	if err != nil {
		return fmt.Errorf("encode search cache: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("save search cache: %w", err)
	}
	return nil
}
