package handlers

import (
	"net/http"

	"kpr-voting-backend/model"
	"kpr-voting-backend/service"
	"kpr-voting-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Login 认证并返回会话令牌和下一个页面
func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sess, err := h.Auth.Login(ctx, req.ID, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	var step *service.Step
	if sess.Identity.Kind == session.KindVoter {
		step, err = h.Voting.Start(ctx, sess.Identity.ID)
		if err != nil {
			// 无法进入投票流程时撤销本次登录，释放会话锁
			if logoutErr := h.Auth.Logout(ctx, sess); logoutErr != nil {
				log.Error().Err(logoutErr).Str("user_id", sess.Identity.ID).Msg("撤销登录失败")
			}
			respondError(c, err)
			return
		}
		h.track(c, sess, step)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.Token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token": sess.Token,
		"user":  sess.Identity,
		"next":  step,
	})
}

// Logout 释放会话锁并清除会话
func (h *Handler) Logout(c *gin.Context) {
	sess := currentSession(c)
	if err := h.Auth.Logout(c.Request.Context(), sess); err != nil {
		respondError(c, err)
		return
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me 返回当前会话的身份
func (h *Handler) Me(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"user":            sess.Identity,
		"current_role_id": sess.CurrentRoleID,
	})
}
