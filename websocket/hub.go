package websocket

import (
	"context"
	"sync"

	"kpr-voting-backend/metrics"
	"kpr-voting-backend/model"

	"github.com/rs/zerolog/log"
)

// subscriber 一个结果订阅者，WebSocket和SSE连接各持有一个
type subscriber struct {
	send chan []model.RoleResult
}

// Hub 维护结果订阅者集合并广播最新结果
type Hub struct {
	// 已注册的订阅者
	subscribers map[*subscriber]bool

	// 注册请求
	register chan *subscriber

	// 注销请求
	unregister chan *subscriber

	// 广播请求
	broadcast chan []model.RoleResult

	// Run退出时关闭
	done chan struct{}

	// 最近一次广播的结果，新订阅者立即收到
	mu     sync.RWMutex
	latest []model.RoleResult
}

// NewHub 创建一个新的Hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]bool),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan []model.RoleResult, 16),
		done:        make(chan struct{}),
	}
}

// Run 启动Hub消息处理循环，ctx取消时关闭全部订阅者
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for sub := range h.subscribers {
				delete(h.subscribers, sub)
				close(sub.send)
			}
			metrics.ResultsSubscribers.Set(0)
			return

		case sub := <-h.register:
			h.subscribers[sub] = true
			if latest := h.Latest(); latest != nil {
				offer(sub.send, latest)
			}
			metrics.ResultsSubscribers.Set(float64(len(h.subscribers)))
			log.Debug().Int("subscribers", len(h.subscribers)).Msg("结果订阅者已注册")

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.send)
			}
			metrics.ResultsSubscribers.Set(float64(len(h.subscribers)))

		case results := <-h.broadcast:
			for sub := range h.subscribers {
				offer(sub.send, results)
			}
			log.Debug().Int("subscribers", len(h.subscribers)).Msg("已广播最新结果")
		}
	}
}

// Publish 保存并广播结果
func (h *Hub) Publish(results []model.RoleResult) {
	h.mu.Lock()
	h.latest = results
	h.mu.Unlock()

	select {
	case h.broadcast <- results:
	default:
		log.Warn().Msg("广播队列已满，丢弃本次结果")
	}
}

// Latest 最近一次广播的结果
func (h *Hub) Latest() []model.RoleResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Subscribe 注册订阅者，返回的函数注销订阅
// Hub停止后返回已关闭的通道
func (h *Hub) Subscribe(ctx context.Context) (<-chan []model.RoleResult, func()) {
	sub := &subscriber{send: make(chan []model.RoleResult, 1)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.send)
		return sub.send, func() {}
	case <-ctx.Done():
		close(sub.send)
		return sub.send, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			select {
			case h.unregister <- sub:
			case <-h.done:
			}
		})
	}
	return sub.send, cancel
}

// offer 非阻塞发送，订阅者来不及读取时只保留最新结果
func offer(ch chan []model.RoleResult, results []model.RoleResult) {
	select {
	case ch <- results:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- results:
	default:
	}
}
