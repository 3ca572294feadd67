package handlers

import (
	"net/http"
	"strconv"

	"kpr-voting-backend/model"
	"kpr-voting-backend/service"

	"github.com/gin-gonic/gin"
)

// Dashboard 管理后台概览
func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.Admin.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListRoles 职位列表
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.Admin.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

// CreateRole 创建职位
func (h *Handler) CreateRole(c *gin.Context) {
	var req model.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := h.Admin.CreateRole(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// UpdateRole 更新职位
func (h *Handler) UpdateRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := h.Admin.UpdateRole(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DeleteRole 删除职位
func (h *Handler) DeleteRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Admin.DeleteRole(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role deleted"})
}

// ListCandidates 候选人列表，可按role_id过滤
func (h *Handler) ListCandidates(c *gin.Context) {
	var roleID uint64
	if v := c.Query("role_id"); v != "" {
		var err error
		if roleID, err = strconv.ParseUint(v, 10, 32); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role_id"})
			return
		}
	}
	candidates, err := h.Admin.ListCandidates(c.Request.Context(), uint(roleID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

// CreateCandidate 创建候选人
func (h *Handler) CreateCandidate(c *gin.Context) {
	var req model.CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := h.Admin.CreateCandidate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, candidate)
}

// UpdateCandidate 更新候选人
func (h *Handler) UpdateCandidate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := h.Admin.UpdateCandidate(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidate)
}

// DeleteCandidate 删除候选人
func (h *Handler) DeleteCandidate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.Admin.DeleteCandidate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Candidate deleted"})
}

// UploadPhoto 上传候选人照片，表单字段为photo
func (h *Handler) UploadPhoto(c *gin.Context) {
	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if fh.Size > service.MaxPhotoSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo must be 5MB or smaller"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	url, err := h.Admin.UploadPhoto(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"photo_url": url})
}

// VotingStatus 选民投票状态，支持filter和search参数
func (h *Handler) VotingStatus(c *gin.Context) {
	report, err := h.Admin.Status(c.Request.Context(), c.DefaultQuery("filter", service.FilterAll), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ResetAll 清空全部投票
func (h *Handler) ResetAll(c *gin.Context) {
	if err := h.Admin.ResetAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All votes have been reset"})
}

// ResetVoter 清除单个选民的投票
func (h *Handler) ResetVoter(c *gin.Context) {
	id := c.Param("id")
	if err := h.Admin.ResetVoter(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Voter has been reset"})
}

// Recount 根据审计记录重建票数
func (h *Handler) Recount(c *gin.Context) {
	fixed, err := h.Admin.Recount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrected": fixed})
}
