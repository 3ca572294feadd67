package handlers

import (
	"net/http"
	"runtime"
	"time"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/database"

	"github.com/gin-gonic/gin"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string                 `json:"status"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	StartTime    time.Time              `json:"start_time"`
	CurrentTime  time.Time              `json:"current_time"`
	GoVersion    string                 `json:"go_version"`
	NumGoroutine int                    `json:"num_goroutine"`
	DBStatus     string                 `json:"db_status"`
	RedisStatus  string                 `json:"redis_status"`
	Queue        map[string]interface{} `json:"queue,omitempty"`
}

var (
	startTime = time.Now()
	version   = "1.0.0" // 应用版本，可通过构建参数注入
)

// HealthCheck 提供基本健康检查端点
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息，数据库不可用时返回503
func (h *Handler) SystemStatus(c *gin.Context) {
	dbStatus := "ok"
	if err := database.Ping(h.DB); err != nil {
		dbStatus = "error"
	}

	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		DBStatus:     dbStatus,
		RedisStatus:  cache.Status(c.Request.Context()),
	}
	if h.Queue != nil {
		info.Queue = h.Queue.GetQueueStats()
	}

	status := http.StatusOK
	if dbStatus != "ok" {
		info.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, info)
}

// RetryDeadLetters 重新投递死信队列中的事件
func (h *Handler) RetryDeadLetters(c *gin.Context) {
	if h.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue is not configured"})
		return
	}
	n, err := h.Queue.RetryDeadLetters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}
