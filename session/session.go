package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 会话不存在或已过期
var ErrNotFound = errors.New("session not found")

// Kind 身份类型
type Kind string

const (
	KindAdmin Kind = "admin"
	KindVoter Kind = "voter"
)

// Identity 登录后解析出的身份
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	HasVoted bool   `json:"has_voted"`
}

// IsAdmin 是否为管理员
func (i Identity) IsAdmin() bool {
	return i.Kind == KindAdmin
}

// Session 持久化的登录状态，相当于浏览器本地存储里的身份缓存
type Session struct {
	Token         string    `json:"token"`
	Identity      Identity  `json:"identity"`
	CurrentRoleID uint      `json:"current_role_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store 会话持久化接口，只通过Session.Load/Save/Delete访问
type Store interface {
	Get(ctx context.Context, token string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, token string) error
}

// New 为身份创建新会话，生成随机令牌
func New(identity Identity) *Session {
	return &Session{
		Token:     uuid.NewString(),
		Identity:  identity,
		CreatedAt: time.Now(),
	}
}

// Load 按令牌从存储加载会话
func Load(ctx context.Context, store Store, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return store.Get(ctx, token)
}

// Save 写回会话
func (s *Session) Save(ctx context.Context, store Store) error {
	return store.Put(ctx, s)
}

// Clear 删除持久化的会话
func (s *Session) Clear(ctx context.Context, store Store) error {
	return store.Delete(ctx, s.Token)
}

type ctxKey struct{}

// NewContext 把会话放入context
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext 从context取出会话
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
