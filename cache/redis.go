package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// 全局Redis客户端
var (
	redisClient *redis.Client
	initOnce    sync.Once
	initialized bool
	// 模拟模式：未配置地址或连接失败时，上层改用进程内实现
	mockMode bool
)

// Options Redis连接参数
type Options struct {
	Addr     string
	Password string
	DB       int
}

// InitRedis 初始化Redis连接，地址为空或连接失败时进入模拟模式
func InitRedis(opts Options) {
	initOnce.Do(func() {
		initialized = true

		if opts.Addr == "" {
			log.Warn().Msg("未配置REDIS_ADDR，使用Redis模拟模式")
			mockMode = true
			return
		}

		log.Info().Str("addr", opts.Addr).Msg("初始化Redis连接")

		client := redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: 3 * time.Second,
			ReadTimeout: 3 * time.Second,
			PoolSize:    10,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// 测试连接
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis连接失败，将使用模拟模式")
			_ = client.Close()
			mockMode = true
			return
		}

		redisClient = client
		mockMode = false
		log.Info().Msg("Redis连接初始化成功")
	})
}

// GetClient 获取Redis客户端实例
func GetClient() (*redis.Client, error) {
	if !initialized {
		return nil, fmt.Errorf("Redis客户端未初始化")
	}
	if mockMode {
		return nil, ErrRedisNotAvailable
	}
	return redisClient, nil
}

// IsMockMode 是否处于模拟模式
func IsMockMode() bool {
	return mockMode
}

// Status 返回Redis状态描述，用于健康检查
func Status(ctx context.Context) string {
	if !initialized {
		return "uninitialized"
	}
	if mockMode {
		return "disabled"
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return "error"
	}
	return "ok"
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	if initialized && !mockMode && redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("关闭Redis连接错误")
			return
		}
		log.Info().Msg("Redis连接已关闭")
	}
}
