package handlers

import (
	"errors"
	"net/http"
	"strings"

	"kpr-voting-backend/session"

	"github.com/gin-gonic/gin"
)

// SessionCookie 保存会话令牌的cookie名
const SessionCookie = "kpr_session"

const sessionKey = "session"

// RequireSession 加载会话；kind非空时还要求身份类型匹配
func (h *Handler) RequireSession(kind session.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := session.Load(c.Request.Context(), h.Sessions, tokenFrom(c))
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				respondError(c, err)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Login required"})
			return
		}
		if kind != "" && sess.Identity.Kind != kind {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		c.Set(sessionKey, sess)
		c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), sess))
		c.Next()
	}
}

// currentSession 取出中间件加载的会话
func currentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*session.Session); ok {
			return sess
		}
	}
	sess, _ := session.FromContext(c.Request.Context())
	return sess
}

// tokenFrom 优先读取Authorization头，其次读取cookie
func tokenFrom(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	token, _ := c.Cookie(SessionCookie)
	return token
}
