package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// 消息队列的队列名称常量
const (
	MainQueueName       = "kpr:event_queue"       // 主队列
	ProcessingQueueName = "kpr:event_processing"  // 处理中队列
	DeadLetterQueueName = "kpr:event_dead_letter" // 死信队列
	RetriesHashName     = "kpr:event_retries"     // 重试次数记录
	MessageIDSetName    = "kpr:event_message_ids" // 幂等性集合
)

// RedisMQ 基于Redis列表实现的消息队列
type RedisMQ struct {
	client         *redis.Client
	ctx            context.Context
	processHandler Handler
	isRunning      bool
	stopChan       chan struct{}
	wg             sync.WaitGroup
	retryDelay     time.Duration // 重试延迟
	maxRetries     int           // 最大重试次数
}

// NewRedisMQ 创建新的基于Redis的消息队列
func NewRedisMQ(redisClient *redis.Client) *RedisMQ {
	return &RedisMQ{
		client:     redisClient,
		ctx:        context.Background(),
		stopChan:   make(chan struct{}),
		retryDelay: 5 * time.Second,
		maxRetries: 3,
	}
}

// RegisterHandler 注册消息处理函数
func (r *RedisMQ) RegisterHandler(handler Handler) {
	r.processHandler = handler
}

// Publish 发送事件，同一MessageID只入队一次
func (r *RedisMQ) Publish(ctx context.Context, e Event) error {
	jsonData, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	// 幂等性检查，SAdd返回0说明该消息已发送过
	added, err := r.client.SAdd(ctx, MessageIDSetName, e.MessageID).Result()
	if err != nil {
		log.Warn().Err(err).Msg("添加消息ID到幂等性集合出错")
	} else if added == 0 {
		log.Debug().Str("message_id", e.MessageID).Msg("消息已发送过，跳过")
		return nil
	}
	// 设置过期时间，避免集合无限增长
	r.client.Expire(ctx, MessageIDSetName, 48*time.Hour)

	if err := r.client.LPush(ctx, MainQueueName, jsonData).Err(); err != nil {
		return fmt.Errorf("发送消息到队列失败: %w", err)
	}
	return nil
}

// Start 启动消费者
func (r *RedisMQ) Start() error {
	if r.processHandler == nil {
		return fmt.Errorf("处理函数未注册")
	}
	if r.isRunning {
		return nil
	}

	r.isRunning = true
	r.wg.Add(1)
	go r.consumeLoop()

	log.Info().Msg("Redis消息队列消费者已启动")
	return nil
}

// Stop 关闭消费者
func (r *RedisMQ) Stop() {
	if !r.isRunning {
		return
	}
	close(r.stopChan)
	r.wg.Wait()
	r.isRunning = false
	log.Info().Msg("Redis消息队列消费者已关闭")
}

// consumeLoop 主消费循环
func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			return
		default:
			// 使用BRPOPLPUSH原子操作从主队列获取并移动到处理中队列
			result, err := r.client.BRPopLPush(r.ctx, MainQueueName, ProcessingQueueName, time.Second).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) { // 忽略超时
					log.Error().Err(err).Msg("从队列获取消息失败")
					time.Sleep(time.Second)
				}
				continue
			}
			r.processMessage(result)
		}
	}
}

// processMessage 处理单个消息，失败时延迟重试，超过次数进入死信队列
func (r *RedisMQ) processMessage(msgData string) {
	// 无论成功失败，都从处理中队列移除
	defer r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)

	var e Event
	if err := json.Unmarshal([]byte(msgData), &e); err != nil {
		log.Error().Err(err).Msg("解析消息失败")
		r.client.LPush(r.ctx, DeadLetterQueueName, msgData)
		return
	}

	if err := r.processHandler(r.ctx, e); err != nil {
		retries, _ := r.client.HGet(r.ctx, RetriesHashName, e.MessageID).Int()
		if retries >= r.maxRetries {
			log.Error().Err(err).Str("message_id", e.MessageID).Msg("超过最大重试次数，移至死信队列")
			r.client.LPush(r.ctx, DeadLetterQueueName, msgData)
			return
		}

		r.client.HIncrBy(r.ctx, RetriesHashName, e.MessageID, 1)
		log.Warn().Err(err).Str("message_id", e.MessageID).Int("retries", retries+1).Msg("处理消息失败，稍后重试")
		time.AfterFunc(r.retryDelay, func() {
			r.client.LPush(r.ctx, MainQueueName, msgData)
		})
		return
	}

	r.client.HDel(r.ctx, RetriesHashName, e.MessageID)
}

// RetryDeadLetters 把死信队列中的消息移回主队列
func (r *RedisMQ) RetryDeadLetters(ctx context.Context) (int, error) {
	messages, err := r.client.LRange(ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("获取死信队列消息失败: %w", err)
	}

	count := 0
	for _, msgData := range messages {
		if err := r.client.LPush(ctx, MainQueueName, msgData).Err(); err != nil {
			log.Error().Err(err).Msg("重新入队消息失败")
			continue
		}
		r.client.LRem(ctx, DeadLetterQueueName, 1, msgData)

		var e Event
		if json.Unmarshal([]byte(msgData), &e) == nil {
			r.client.HDel(ctx, RetriesHashName, e.MessageID)
		}
		count++
	}
	return count, nil
}

// GetQueueStats 获取各队列的消息数量统计
func (r *RedisMQ) GetQueueStats() map[string]int64 {
	stats := make(map[string]int64)

	mainLen, _ := r.client.LLen(r.ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(r.ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(r.ctx, DeadLetterQueueName).Result()

	stats["main_queue"] = mainLen
	stats["processing_queue"] = procLen
	stats["dead_letter_queue"] = deadLen
	return stats
}
