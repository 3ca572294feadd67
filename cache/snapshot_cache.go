package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache 把一个JSON快照缓存在单个Redis键下，写操作后调用Invalidate
type SnapshotCache struct {
	redisClient RedisClient
	key         string
	ttl         time.Duration
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(client RedisClient, key string, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{redisClient: client, key: "snapshot:" + key, ttl: ttl}
}

// Get 读取快照到dst，未命中返回ErrKeyNotFound
func (c *SnapshotCache) Get(ctx context.Context, dst interface{}) error {
	data, err := c.redisClient.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Set 写入快照
func (c *SnapshotCache) Set(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.redisClient.Set(ctx, c.key, data, c.ttl).Err()
}

// Invalidate 删除快照
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	return c.redisClient.Del(ctx, c.key).Err()
}
