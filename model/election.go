package model

import (
	"encoding/json"
	"time"
)

// LoginRequest 登录请求
type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RoleRequest 创建或更新职位
type RoleRequest struct {
	Name       string `json:"name" binding:"required,max=128"`
	OrderIndex *int   `json:"order_index" binding:"required"`
}

// CandidateRequest 创建或更新候选人
type CandidateRequest struct {
	Name      string  `json:"name" binding:"required,max=128"`
	StudyInfo *string `json:"study_info"`
	RoleID    uint    `json:"role_id" binding:"required"`
	PhotoURL  *string `json:"photo_url" binding:"omitempty,max=512"`
}

// SubmitVoteRequest 提交投票
type SubmitVoteRequest struct {
	CandidateID uint `json:"candidate_id" binding:"required"`
}

// CandidateResult 单个候选人的统计结果
type CandidateResult struct {
	CandidateID uint    `json:"candidate_id"`
	Name        string  `json:"name"`
	PhotoURL    *string `json:"photo_url,omitempty"`
	Votes       int64   `json:"votes"`
	Percentage  float64 `json:"percentage"`
}

// RoleResult 单个职位的统计结果，候选人按票数降序
type RoleResult struct {
	RoleID     uint              `json:"role_id"`
	RoleName   string            `json:"role_name"`
	OrderIndex int               `json:"order_index"`
	TotalVotes int64             `json:"total_votes"`
	Candidates []CandidateResult `json:"candidates"`
}

// BallotLine 选民完成投票后的回执条目
type BallotLine struct {
	RoleID        uint      `json:"role_id"`
	RoleName      string    `json:"role_name"`
	OrderIndex    int       `json:"order_index"`
	CandidateID   uint      `json:"candidate_id"`
	CandidateName string    `json:"candidate_name"`
	Timestamp     time.Time `json:"timestamp"`
}

// VoterStatus 单个选民的投票状态
type VoterStatus struct {
	UserID   string        `json:"user_id"`
	Name     string        `json:"name"`
	HasVoted bool          `json:"has_voted"`
	Votes    map[uint]uint `json:"votes"` // role_id -> candidate_id
}

// StatusReport 投票状态审计列表
type StatusReport struct {
	Voters     []VoterStatus   `json:"voters"`
	Roles      map[uint]string `json:"roles"`
	Candidates map[uint]string `json:"candidates"`
	Total      int             `json:"total"`
	Voted      int             `json:"voted"`
}

// DashboardStats 管理后台概览
type DashboardStats struct {
	Roles       int64 `json:"roles"`
	Candidates  int64 `json:"candidates"`
	Voters      int64 `json:"voters"`
	VotersDone  int64 `json:"voters_done"`
	VotesCast   int64 `json:"votes_cast"`
	ActiveLocks int64 `json:"active_sessions"`
}

// WebSocketMessage 定义WebSocket消息格式
type WebSocketMessage struct {
	Type    string      `json:"type"`    // 消息类型
	Payload interface{} `json:"payload"` // 消息内容
}

// 消息类型
const (
	MessageTypeResults   = "results"
	MessageTypeHeartbeat = "heartbeat"
)

// ToJSON 将WebSocket消息转换为JSON字节数组
func (m *WebSocketMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
