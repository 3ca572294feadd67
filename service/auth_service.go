package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"kpr-voting-backend/metrics"
	"kpr-voting-backend/repository"
	"kpr-voting-backend/session"
	"kpr-voting-backend/voters"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AdminName 管理员身份的显示名
const AdminName = "Administrator"

// AuthService 登录、登出和会话锁管理
type AuthService struct {
	repo          *repository.ElectionRepository
	directory     *voters.Directory
	sessions      session.Store
	adminID       string
	adminPassword string
	now           func() time.Time
}

// NewAuthService 创建认证服务，adminID为空时禁用管理员登录
func NewAuthService(repo *repository.ElectionRepository, directory *voters.Directory, sessions session.Store, adminID, adminPassword string) *AuthService {
	return &AuthService{
		repo:          repo,
		directory:     directory,
		sessions:      sessions,
		adminID:       voters.NormalizeID(adminID),
		adminPassword: adminPassword,
		now:           time.Now,
	}
}

// Authenticate 解析ID和密码为管理员或选民身份
// 选民登录成功时创建会话锁，已有会话锁时返回ErrSessionAlreadyActive
func (s *AuthService) Authenticate(ctx context.Context, id, password string) (*session.Identity, error) {
	id = voters.NormalizeID(id)

	if s.isAdmin(id, password) {
		return &session.Identity{ID: id, Name: AdminName, Kind: session.KindAdmin}, nil
	}

	entry, ok := s.directory.Verify(id, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	var identity *session.Identity
	err := s.repo.Transaction(ctx, func(repo *repository.ElectionRepository) error {
		active, err := repo.ActiveSessionExists(ctx, entry.ID)
		if err != nil {
			return storeErr(err, "check active session")
		}
		if active {
			return ErrSessionAlreadyActive
		}

		user, err := repo.FirstOrCreateUser(ctx, entry.ID, entry.Name)
		if err != nil {
			return storeErr(err, "load voter")
		}

		if err := repo.CreateActiveSession(ctx, entry.ID, s.now()); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSessionAlreadyActive
			}
			return storeErr(err, "create active session")
		}

		identity = &session.Identity{
			ID:       user.ID,
			Name:     entry.Name,
			Kind:     session.KindVoter,
			HasVoted: user.HasVoted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// Login 认证并持久化会话
func (s *AuthService) Login(ctx context.Context, id, password string) (*session.Session, error) {
	identity, err := s.Authenticate(ctx, id, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginOutcome(err)).Inc()
		return nil, err
	}

	sess := session.New(*identity)
	if err := sess.Save(ctx, s.sessions); err != nil {
		// 会话无法持久化时释放刚创建的会话锁，让选民可以重试
		if identity.Kind == session.KindVoter {
			if delErr := s.repo.DeleteActiveSession(ctx, identity.ID); delErr != nil {
				log.Error().Err(delErr).Str("user_id", identity.ID).Msg("回滚会话锁失败")
			}
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, storeErr(err, "save session")
	}

	metrics.LoginsTotal.WithLabelValues(string(identity.Kind)).Inc()
	log.Info().Str("user_id", identity.ID).Str("kind", string(identity.Kind)).Msg("登录成功")
	return sess, nil
}

// Logout 删除选民的会话锁并清除持久化的身份
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if sess.Identity.Kind == session.KindVoter {
		if err := s.repo.DeleteActiveSession(ctx, sess.Identity.ID); err != nil {
			return storeErr(err, "delete active session")
		}
	}
	if err := sess.Clear(ctx, s.sessions); err != nil {
		return storeErr(err, "clear session")
	}
	return nil
}

// ReapStaleSessions 删除开始时间早于maxAge之前的会话锁
func (s *AuthService) ReapStaleSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.repo.DeleteSessionsStartedBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, storeErr(err, "reap stale sessions")
	}
	if n > 0 {
		metrics.StaleSessionsReaped.Add(float64(n))
		log.Info().Int64("count", n).Msg("已清理过期会话锁")
	}
	return n, nil
}

// StartReaper 周期性清理过期会话锁，ctx取消时退出
func (s *AuthService) StartReaper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ReapStaleSessions(ctx, maxAge); err != nil {
					log.Error().Err(err).Msg("清理过期会话锁失败")
				}
			}
		}
	}()
}

func (s *AuthService) isAdmin(id, password string) bool {
	if s.adminID == "" || s.adminPassword == "" {
		return false
	}
	return id == s.adminID &&
		subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) == 1
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid"
	case errors.Is(err, ErrSessionAlreadyActive):
		return "session_active"
	default:
		return "error"
	}
}
