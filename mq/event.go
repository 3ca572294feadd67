package mq

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

var eventSeq atomic.Uint64

// 事件类型
const (
	EventVoteCast     = "vote_cast"
	EventVoterReset   = "voter_reset"
	EventGlobalReset  = "global_reset"
	EventBallotChange = "ballot_changed" // 职位或候选人增删改
)

// Event 投票相关事件，消费者据此刷新实时结果
type Event struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"` // 用于幂等性处理
	VoterID     string `json:"voter_id,omitempty"`
	RoleID      uint   `json:"role_id,omitempty"`
	CandidateID uint   `json:"candidate_id,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// NewEvent 创建管理类事件，MessageID由key、时间戳和进程内序号组成，每次都不同
func NewEvent(eventType, key string) Event {
	now := time.Now()
	return Event{
		Type:      eventType,
		MessageID: fmt.Sprintf("%s:%s:%d-%d", eventType, key, now.UnixNano(), eventSeq.Add(1)),
		Timestamp: now.Unix(),
	}
}

// NewVoteCastEvent 创建选票事件，MessageID由选票的幂等键和审计记录ID组成
// 同一张选票重复发布时MessageID相同，会被幂等性集合丢弃；重置后重新投出的选票是新记录
func NewVoteCastEvent(voteKey string, voteID uint) Event {
	return Event{
		Type:      EventVoteCast,
		MessageID: fmt.Sprintf("%s:%s:%d", EventVoteCast, voteKey, voteID),
		Timestamp: time.Now().Unix(),
	}
}

// Handler 事件处理函数
type Handler func(ctx context.Context, e Event) error

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
