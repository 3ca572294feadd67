package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore 基于Redis的会话存储，值为JSON，带过期时间
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore 创建Redis会话存储
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get 读取会话
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("解析会话失败: %w", err)
	}
	return &sess, nil
}

// Put 写入会话并刷新过期时间
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.Token, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("写入会话失败: %w", err)
	}
	return nil
}

// Delete 删除会话
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

// MemoryStore 进程内会话存储，Redis不可用或测试时使用
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore 创建内存会话存储
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, sessions: make(map[string]memoryEntry)}
}

// Get 读取会话，过期的会话视为不存在
func (s *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok || (s.ttl > 0 && time.Now().After(e.expiresAt)) {
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(e.data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Put 写入会话
func (s *MemoryStore) Put(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[sess.Token] = memoryEntry{data: data, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// Delete 删除会话
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}
