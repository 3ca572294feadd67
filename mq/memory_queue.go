package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("queue closed")

// MemoryQueue 进程内事件队列，Redis不可用时使用
type MemoryQueue struct {
	events  chan Event
	handler Handler
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{events: make(chan Event, size)}
}

// RegisterHandler 注册处理函数并启动消费者
func (q *MemoryQueue) RegisterHandler(h Handler) {
	q.handler = h
	q.wg.Add(1)
	go q.consumeLoop()
}

// Publish 发布事件，队列满时丢弃并记录日志
func (q *MemoryQueue) Publish(_ context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.events <- e:
	default:
		log.Warn().Str("message_id", e.MessageID).Msg("内存队列已满，丢弃事件")
	}
	return nil
}

func (q *MemoryQueue) consumeLoop() {
	defer q.wg.Done()
	for e := range q.events {
		if err := q.handler(context.Background(), e); err != nil {
			log.Error().Err(err).Str("message_id", e.MessageID).Msg("处理事件失败")
		}
	}
}

// Len 队列中待处理的事件数
func (q *MemoryQueue) Len() int {
	return len(q.events)
}

// Stop 关闭队列并等待已入队事件处理完
func (q *MemoryQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.events)
	q.mu.Unlock()

	if q.handler != nil {
		q.wg.Wait()
	}
}
