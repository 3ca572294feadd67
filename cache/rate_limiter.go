package cache

import (
	"context"
	"fmt"
	"time"
)

// 令牌桶算法的Lua脚本
const tokenBucketScript = `
local tokens_key = KEYS[1] .. ":tokens"
local timestamp_key = KEYS[1] .. ":ts"
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = math.ceil(burst / rate) * 2

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or now)

-- 计算距离上次更新经过的时间，添加相应的令牌
local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1
redis.call("setex", tokens_key, ttl, new_tokens)
redis.call("setex", timestamp_key, ttl, now)
return 1
`

// TokenBucketRateLimiter 基于Redis的令牌桶限流器，按key独立计数
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	prefix      string
	rate        float64 // 每秒生成的令牌数量
	burst       int     // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, prefix string, rate float64, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("rate_limit:%s", prefix),
		rate:        rate,
		burst:       burst,
	}
}

// Allow 判断key对应的请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := float64(time.Now().UnixMilli()) / 1000
	result, err := l.redisClient.Eval(ctx, tokenBucketScript,
		[]string{l.prefix + ":" + key}, now, l.rate, l.burst).Int64()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}
