package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker 按名字互斥执行action，锁已被占用时立即返回ErrLockNotAcquired
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error
}

// DistributedLockService 基于redsync的分布式锁服务
type DistributedLockService struct {
	rs *redsync.Redsync
}

// NewDistributedLockService 使用现有Redis客户端创建分布式锁
func NewDistributedLockService(client *redis.Client) *DistributedLockService {
	pool := goredis.NewPool(client)
	return &DistributedLockService{rs: redsync.New(pool)}
}

// WithLock 在锁内执行操作，只尝试一次，不排队等待
func (s *DistributedLockService) WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error {
	mutex := s.rs.NewMutex(name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(1),
		redsync.WithDriftFactor(0.01), // 时钟漂移因子
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}

	// 确保解锁，使用独立context避免请求取消后锁残留到过期
	defer func() {
		_, _ = mutex.UnlockContext(context.Background())
	}()

	return action()
}

// LocalLocker 进程内锁，Redis不可用时使用
type LocalLocker struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{names: make(map[string]struct{})}
}

// WithLock 在锁内执行操作，expiry在进程内不生效
func (l *LocalLocker) WithLock(ctx context.Context, name string, _ time.Duration, action func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if _, held := l.names[name]; held {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.names[name] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.names, name)
		l.mu.Unlock()
	}()

	return action()
}

// NewLocker Redis可用时返回分布式锁，否则返回进程内锁
func NewLocker() Locker {
	if client, err := GetClient(); err == nil {
		return NewDistributedLockService(client)
	}
	return NewLocalLocker()
}
