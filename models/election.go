package models

import (
	"strconv"
	"time"
)

// Role 选举职位，OrderIndex决定投票顺序
type Role struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	Name       string      `gorm:"size:128;not null" json:"name"`
	OrderIndex int         `gorm:"not null;uniqueIndex" json:"order_index"`
	Candidates []Candidate `gorm:"foreignKey:RoleID" json:"candidates,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Candidate 候选人，Votes为缓存的票数
type Candidate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	StudyInfo *string   `gorm:"type:text" json:"study_info"`
	RoleID    uint      `gorm:"not null;index:idx_candidates_role_created,priority:1" json:"role_id"`
	PhotoURL  *string   `gorm:"size:512" json:"photo_url"`
	Votes     int64     `gorm:"not null;default:0" json:"votes"`
	CreatedAt time.Time `gorm:"index:idx_candidates_role_created,priority:2" json:"created_at"`
}

// User 选民，ID为大写学号
type User struct {
	ID        string    `gorm:"primaryKey;size:32" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	HasVoted  bool      `gorm:"not null;default:false" json:"has_voted"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote 投票审计记录，只追加
type Vote struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:32;not null;index" json:"user_id"`
	CandidateID    uint      `gorm:"not null;index" json:"candidate_id"`
	RoleID         uint      `gorm:"not null;index" json:"role_id"`
	IdempotencyKey string    `gorm:"size:96;not null;uniqueIndex" json:"-"`
	Timestamp      time.Time `gorm:"not null" json:"timestamp"`
}

// UserVote 选民在某职位上已投票的事实，(user_id, role_id)唯一
type UserVote struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      string    `gorm:"size:32;not null;uniqueIndex:idx_user_votes_user_role" json:"user_id"`
	RoleID      uint      `gorm:"not null;uniqueIndex:idx_user_votes_user_role" json:"role_id"`
	CandidateID uint      `gorm:"not null;index" json:"candidate_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActiveSession 选民正在投票的会话锁
type ActiveSession struct {
	UserID    string    `gorm:"primaryKey;size:32" json:"user_id"`
	StartedAt time.Time `gorm:"not null;index" json:"started_at"`
}

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Role{}, &Candidate{}, &User{}, &Vote{}, &UserVote{}, &ActiveSession{},
	}
}

// VoteKey 生成(选民, 职位)的幂等键
func VoteKey(userID string, roleID uint) string {
	return userID + ":" + strconv.FormatUint(uint64(roleID), 10)
}
