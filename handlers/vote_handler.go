package handlers

import (
	"context"
	"errors"
	"net/http"

	"kpr-voting-backend/model"
	"kpr-voting-backend/service"
	"kpr-voting-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Resume 回到会话记录的当前职位，没有记录时从第一个职位开始
func (h *Handler) Resume(c *gin.Context) {
	sess := currentSession(c)
	ctx := c.Request.Context()

	step, err := h.resume(ctx, sess)
	if err != nil {
		respondError(c, err)
		return
	}
	h.track(c, sess, step)
	c.JSON(http.StatusOK, step)
}

func (h *Handler) resume(ctx context.Context, sess *session.Session) (*service.Step, error) {
	if sess.CurrentRoleID == 0 {
		return h.Voting.Start(ctx, sess.Identity.ID)
	}
	step, err := h.Voting.Enter(ctx, sess.Identity.ID, sess.CurrentRoleID)
	if errors.Is(err, service.ErrNotFound) {
		// 记录的职位已被删除
		return h.Voting.Start(ctx, sess.Identity.ID)
	}
	return step, err
}

// EnterRole 进入指定职位的投票页面
func (h *Handler) EnterRole(c *gin.Context) {
	roleID, ok := parseID(c, "id")
	if !ok {
		return
	}
	sess := currentSession(c)

	step, err := h.Voting.Enter(c.Request.Context(), sess.Identity.ID, roleID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.track(c, sess, step)
	c.JSON(http.StatusOK, step)
}

// SubmitVote 提交当前职位的选票
func (h *Handler) SubmitVote(c *gin.Context) {
	roleID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.SubmitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := currentSession(c)

	step, err := h.Voting.Submit(c.Request.Context(), sess.Identity.ID, roleID, req.CandidateID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.track(c, sess, step)
	c.JSON(http.StatusOK, step)
}

// ContinueRole 跳过没有候选人的职位
func (h *Handler) ContinueRole(c *gin.Context) {
	roleID, ok := parseID(c, "id")
	if !ok {
		return
	}
	sess := currentSession(c)

	step, err := h.Voting.Continue(c.Request.Context(), sess.Identity.ID, roleID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.track(c, sess, step)
	c.JSON(http.StatusOK, step)
}

// Receipt 完成页面的投票回执
func (h *Handler) Receipt(c *gin.Context) {
	sess := currentSession(c)
	lines, err := h.Voting.Receipt(c.Request.Context(), sess.Identity.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":   sess.Identity,
		"ballot": lines,
	})
}

// track 把流程位置写回会话，刷新页面时可以继续
func (h *Handler) track(c *gin.Context, sess *session.Session, step *service.Step) {
	switch {
	case step.State == service.StateComplete:
		sess.CurrentRoleID = 0
		sess.Identity.HasVoted = true
	case step.Role != nil:
		sess.CurrentRoleID = step.Role.ID
	}
	if err := sess.Save(c.Request.Context(), h.Sessions); err != nil {
		log.Warn().Err(err).Str("user_id", sess.Identity.ID).Msg("保存投票进度失败")
	}
}
