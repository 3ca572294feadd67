package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// LoginRateLimit 按客户端IP限制登录频率，限流器出错时放行
func (h *Handler) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Limiter == nil {
			c.Next()
			return
		}

		allowed, err := h.Limiter.Allow(c.Request.Context(), "login:"+c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("限流检查失败，放行请求")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts, please try again later"})
			return
		}
		c.Next()
	}
}
