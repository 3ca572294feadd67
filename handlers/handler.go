package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/service"
	"kpr-voting-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Deps 处理器依赖
type Deps struct {
	DB       *gorm.DB
	Auth     *service.AuthService
	Voting   *service.VotingService
	Admin    *service.AdminService
	Results  *service.ResultsService
	Feed     service.ResultsFeed
	Sessions session.Store
	Limiter  service.RateLimiter
	Queue    *mq.MQAdapter
}

// Handler HTTP处理器集合
type Handler struct {
	Deps
}

// New 创建处理器
func New(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// respondError 把业务错误映射为HTTP状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		msg = "Invalid ID or password"
	case errors.Is(err, service.ErrSessionAlreadyActive):
		status = http.StatusConflict
		msg = "User is already logged in and in voting process"
	case errors.Is(err, service.ErrSubmitInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNoRoles):
		status = http.StatusNotFound
		msg = "No voting positions available"
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrRemoteUnavailable), errors.Is(err, cache.ErrRedisNotAvailable):
		status = http.StatusServiceUnavailable
		msg = "Service temporarily unavailable. Please try again."
	default:
		msg = "Internal server error. Please try again."
	}

	// 5xx的详细错误只写日志，不返回给客户端
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("请求处理失败")
	}
	c.JSON(status, gin.H{"error": msg})
}

// parseID 解析路径中的数字ID
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
