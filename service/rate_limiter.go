package service

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter 定义限流器接口
type RateLimiter interface {
	// Allow 检查key对应的请求是否允许通过
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalRateLimiter 进程内按key的令牌桶限流器
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLocalRateLimiter 创建限流器，perSecond为每秒补充的令牌数
func NewLocalRateLimiter(perSecond float64, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow 检查key对应的请求是否允许通过
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}
