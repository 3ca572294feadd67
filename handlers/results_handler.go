package handlers

import (
	"fmt"
	"net/http"
	"time"

	"kpr-voting-backend/model"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// sseHeartbeat SSE心跳间隔
const sseHeartbeat = 15 * time.Second

// GetResults 返回当前结果
func (h *Handler) GetResults(c *gin.Context) {
	results, err := h.Results.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// LiveResults 通过SSE推送结果更新
func (h *Handler) LiveResults(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	// 设置SSE所需的HTTP头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲
	c.Status(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	updates, unsubscribe := h.Feed.Subscribe(ctx)
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	log.Info().Str("remote", c.ClientIP()).Msg("SSE客户端已连接")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("remote", c.ClientIP()).Msg("SSE客户端已断开")
			return
		case results, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSSE(c, flusher, &model.WebSocketMessage{Type: model.MessageTypeResults, Payload: results}); err != nil {
				return
			}
		case t := <-heartbeat.C:
			msg := &model.WebSocketMessage{Type: model.MessageTypeHeartbeat, Payload: t.Format(time.RFC3339)}
			if err := writeSSE(c, flusher, msg); err != nil {
				return
			}
		}
	}
}

func writeSSE(c *gin.Context, flusher http.Flusher, msg *model.WebSocketMessage) error {
	data, err := msg.ToJSON()
	if err != nil {
		log.Error().Err(err).Msg("序列化SSE数据失败")
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		log.Warn().Err(err).Msg("写入SSE数据失败")
		return err
	}
	flusher.Flush()
	return nil
}
