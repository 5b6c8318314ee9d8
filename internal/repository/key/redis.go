package key

import (
	"context"
	"errors"
	"fmt"
	"time"

	"privly_chat/internal/model"
	redisSvc "privly_chat/internal/service/redis"

	"github.com/redis/go-redis/v9"
)

type (
	// KeyCache keeps records in Redis with an optional expiry. Expired
	// identities simply re-register on their next session.
	KeyCache struct {
		redisService *redisSvc.RedisService
		ttl          time.Duration
	}
)

func NewKeyCache(redisService *redisSvc.RedisService, ttl time.Duration) *KeyCache {
	return &KeyCache{
		redisService: redisService,
		ttl:          ttl,
	}
}

func cacheKey(identity string) string {
	return fmt.Sprintf("box_key: %s", identity)
}

func (c *KeyCache) Get(ctx context.Context, identity string) (*model.KeyRecord, error) {
	v, err := c.redisService.Get(ctx, cacheKey(identity))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &model.KeyRecord{
		Identity:  identity,
		PublicKey: []byte(v),
	}, nil
}

func (c *KeyCache) Put(ctx context.Context, rec *model.KeyRecord) error {
	return c.redisService.Set(ctx, cacheKey(rec.Identity), rec.PublicKey, c.ttl)
}
