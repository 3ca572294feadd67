package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient 定义缓存和限流用到的Redis操作，*redis.Client直接满足
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}
