package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/database"
	"kpr-voting-backend/models"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestRepo 为每个测试创建独立的内存SQLite数据库
func newTestRepo(t *testing.T) *repository.ElectionRepository {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return repository.NewElectionRepository(db)
}

// seedRole 创建职位和候选人
func seedRole(t *testing.T, repo *repository.ElectionRepository, name string, order int, candidates ...string) (models.Role, []models.Candidate) {
	t.Helper()
	ctx := context.Background()

	role := models.Role{Name: name, OrderIndex: order}
	require.NoError(t, repo.SaveRole(ctx, &role))

	out := make([]models.Candidate, 0, len(candidates))
	for _, n := range candidates {
		c := models.Candidate{Name: n, RoleID: role.ID}
		require.NoError(t, repo.SaveCandidate(ctx, &c))
		out = append(out, c)
	}
	return role, out
}

func seedVoter(t *testing.T, repo *repository.ElectionRepository, id string) {
	t.Helper()
	_, err := repo.FirstOrCreateUser(context.Background(), id, "Voter "+id)
	require.NoError(t, err)
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e mq.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// memorySnapshots 进程内的结果快照缓存
type memorySnapshots struct {
	mu   sync.Mutex
	data []byte
}

func (m *memorySnapshots) Get(_ context.Context, dst interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return cache.ErrKeyNotFound
	}
	return json.Unmarshal(m.data, dst)
}

func (m *memorySnapshots) Set(_ context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *memorySnapshots) Invalidate(context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
