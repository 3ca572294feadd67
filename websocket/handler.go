package websocket

import (
	"context"
	"net/http"
	"time"

	"kpr-voting-backend/model"
	"kpr-voting-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由CORS中间件和管理员认证控制
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 实时结果的WebSocket处理器
type Handler struct {
	feed service.ResultsFeed
}

// NewHandler 创建WebSocket处理器
func NewHandler(feed service.ResultsFeed) *Handler {
	return &Handler{feed: feed}
}

// ServeResults 把连接升级为WebSocket并推送结果更新
func (h *Handler) ServeResults(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket升级失败")
		return
	}

	// 连接的生命周期由读写协程控制，不跟随请求
	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe := h.feed.Subscribe(ctx)
	stop := func() {
		unsubscribe()
		cancel()
	}

	go writePump(conn, updates)
	go readPump(conn, stop)

	log.Info().Str("remote", c.ClientIP()).Msg("结果WebSocket连接已建立")
}

// readPump 读取并丢弃客户端消息，连接断开时取消订阅
func readPump(conn *websocket.Conn, stop func()) {
	defer func() {
		stop()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("读取WebSocket消息失败")
			}
			return
		}
	}
}

// writePump 把结果更新写入连接，并定期发送ping
func writePump(conn *websocket.Conn, updates <-chan []model.RoleResult) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case results, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 订阅已结束
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg := &model.WebSocketMessage{Type: model.MessageTypeResults, Payload: results}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
