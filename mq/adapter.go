package mq

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// MQAdapter 消息队列适配器：Redis可用时使用Redis MQ，否则使用内存队列；
// 配置了RocketMQ时事件同时镜像到RocketMQ
type MQAdapter struct {
	redisMQ  *RedisMQ
	memory   *MemoryQueue
	rocket   *RocketProducer
	mirrorCh chan Event
}

// NewMQAdapter 创建消息队列适配器，redisClient为nil时使用内存队列
func NewMQAdapter(redisClient *redis.Client, rocketNameServer string) *MQAdapter {
	a := &MQAdapter{}

	if redisClient != nil {
		a.redisMQ = NewRedisMQ(redisClient)
		log.Info().Msg("成功初始化Redis MQ")
	} else {
		a.memory = NewMemoryQueue(1024)
		log.Info().Msg("使用内存消息队列")
	}

	if rocketNameServer != "" {
		p, err := NewRocketProducer(rocketNameServer)
		if err != nil {
			log.Warn().Err(err).Msg("RocketMQ不可用，跳过事件镜像")
		} else {
			a.rocket = p
			a.mirrorCh = make(chan Event, 1024)
			go a.mirrorLoop()
		}
	}

	return a
}

// RegisterHandler 注册消息处理函数并启动消费者
func (a *MQAdapter) RegisterHandler(handler Handler) error {
	if a.redisMQ != nil {
		a.redisMQ.RegisterHandler(handler)
		if err := a.redisMQ.Start(); err != nil {
			return fmt.Errorf("启动Redis MQ消费者失败: %w", err)
		}
		return nil
	}
	a.memory.RegisterHandler(handler)
	return nil
}

// Publish 发布事件
func (a *MQAdapter) Publish(ctx context.Context, e Event) error {
	var err error
	if a.redisMQ != nil {
		err = a.redisMQ.Publish(ctx, e)
	} else {
		err = a.memory.Publish(ctx, e)
	}

	if a.mirrorCh != nil {
		select {
		case a.mirrorCh <- e:
		default:
			log.Warn().Str("message_id", e.MessageID).Msg("RocketMQ镜像缓冲已满，丢弃事件")
		}
	}
	return err
}

// mirrorLoop 异步把事件发送到RocketMQ，不阻塞投票请求
func (a *MQAdapter) mirrorLoop() {
	for e := range a.mirrorCh {
		if err := a.rocket.Publish(context.Background(), e); err != nil {
			log.Error().Err(err).Str("message_id", e.MessageID).Msg("镜像事件到RocketMQ失败")
		}
	}
}

// GetQueueStats 获取队列统计信息
func (a *MQAdapter) GetQueueStats() map[string]interface{} {
	stats := make(map[string]interface{})
	if a.redisMQ != nil {
		stats["type"] = "redis"
		stats["queues"] = a.redisMQ.GetQueueStats()
	} else {
		stats["type"] = "memory"
		stats["pending"] = a.memory.Len()
	}
	stats["rocketmq_mirror"] = a.rocket != nil
	return stats
}

// RetryDeadLetters 重试死信队列中的消息（仅Redis MQ模式可用）
func (a *MQAdapter) RetryDeadLetters(ctx context.Context) (int, error) {
	if a.redisMQ == nil {
		return 0, fmt.Errorf("当前消息队列模式不支持死信队列操作")
	}
	return a.redisMQ.RetryDeadLetters(ctx)
}

// Close 关闭消息队列
func (a *MQAdapter) Close() {
	if a.redisMQ != nil {
		a.redisMQ.Stop()
	}
	if a.memory != nil {
		a.memory.Stop()
	}
	if a.rocket != nil {
		close(a.mirrorCh)
		if err := a.rocket.Shutdown(); err != nil {
			log.Error().Err(err).Msg("关闭RocketMQ生产者失败")
		}
	}
	log.Info().Msg("消息队列已关闭")
}
