package service

import (
	"context"
	"testing"
	"time"

	"kpr-voting-backend/models"
	"kpr-voting-backend/session"
	"kpr-voting-backend/voters"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) (*AuthService, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour)
	return NewAuthService(newTestRepo(t), voters.Builtin(), store, "admin", "admin123"), store
}

func TestAuthenticate_Admin(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	identity, err := auth.Authenticate(ctx, " admin ", "admin123")
	require.NoError(t, err)
	assert.Equal(t, session.KindAdmin, identity.Kind)
	assert.Equal(t, "ADMIN", identity.ID)

	// 管理员登录不创建会话锁
	n, err := auth.repo.Count(ctx, &models.ActiveSession{})
	require.NoError(t, err)
	assert.Zero(t, n)

	// 管理员可以重复登录
	_, err = auth.Authenticate(ctx, "ADMIN", "admin123")
	assert.NoError(t, err)
}

func TestAuthenticate_Voter(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	identity, err := auth.Authenticate(ctx, "23bcs01", "kpr@2301")
	require.NoError(t, err)
	assert.Equal(t, session.KindVoter, identity.Kind)
	assert.Equal(t, "23BCS01", identity.ID)
	assert.Equal(t, "Aarav Kumar", identity.Name)
	assert.False(t, identity.HasVoted)

	user, err := auth.repo.GetUser(ctx, "23BCS01")
	require.NoError(t, err)
	assert.False(t, user.HasVoted)

	active, err := auth.repo.ActiveSessionExists(ctx, "23BCS01")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestAuthenticate_SessionAlreadyActive(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.Authenticate(ctx, "23BCS01", "kpr@2301")
	require.NoError(t, err)

	_, err = auth.Authenticate(ctx, "23BCS01", "kpr@2301")
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)

	// 其他选民不受影响
	_, err = auth.Authenticate(ctx, "23BCS02", "kpr@2302")
	assert.NoError(t, err)
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		id       string
		password string
	}{
		{"wrong password", "23BCS01", "nope"},
		{"unknown voter", "99XYZ99", "kpr@2301"},
		{"wrong admin password", "admin", "kpr@2301"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Authenticate(ctx, tc.id, tc.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}

	n, err := auth.repo.Count(ctx, &models.User{})
	require.NoError(t, err)
	assert.Zero(t, n, "failed logins must not create voters")
}

func TestAuthenticate_AdminDisabledWithoutConfig(t *testing.T) {
	auth := NewAuthService(newTestRepo(t), voters.Builtin(), session.NewMemoryStore(time.Hour), "", "")
	_, err := auth.Authenticate(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLogout(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	sess, err := auth.Login(ctx, "23BCS03", "kpr@2303")
	require.NoError(t, err)

	loaded, err := session.Load(ctx, store, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "23BCS03", loaded.Identity.ID)

	require.NoError(t, auth.Logout(ctx, loaded))

	_, err = session.Load(ctx, store, sess.Token)
	assert.ErrorIs(t, err, session.ErrNotFound)

	active, err := auth.repo.ActiveSessionExists(ctx, "23BCS03")
	require.NoError(t, err)
	assert.False(t, active)

	// 登出后可以重新登录
	_, err = auth.Login(ctx, "23BCS03", "kpr@2303")
	assert.NoError(t, err)
}

func TestReapStaleSessions(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, auth.repo.CreateActiveSession(ctx, "23BCS01", now.Add(-3*time.Hour)))
	require.NoError(t, auth.repo.CreateActiveSession(ctx, "23BCS02", now.Add(-10*time.Minute)))

	n, err := auth.ReapStaleSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stale, err := auth.repo.ActiveSessionExists(ctx, "23BCS01")
	require.NoError(t, err)
	assert.False(t, stale)

	fresh, err := auth.repo.ActiveSessionExists(ctx, "23BCS02")
	require.NoError(t, err)
	assert.True(t, fresh)

	// 被清理的选民可以重新登录
	_, err = auth.Authenticate(ctx, "23BCS01", "kpr@2301")
	assert.NoError(t, err)
}
