package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/database"
	"kpr-voting-backend/handlers"
	"kpr-voting-backend/models"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"
	"kpr-voting-backend/routes"
	"kpr-voting-backend/service"
	"kpr-voting-backend/session"
	"kpr-voting-backend/voters"
	"kpr-voting-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	adminID       = "admin"
	adminPassword = "admin123"
)

// testEnv 一个完整的HTTP测试环境
type testEnv struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
	repo   *repository.ElectionRepository
	auth   *service.AuthService
	hub    *websocket.Hub
}

// SetupTestEnvironment 使用内存SQLite和进程内组件搭建路由
func SetupTestEnvironment(t *testing.T, limiter service.RateLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	repo := repository.NewElectionRepository(db)
	sessions := session.NewMemoryStore(time.Hour)
	results := service.NewResultsService(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub()
	go hub.Run(ctx)

	queue := mq.NewMQAdapter(nil, "")
	require.NoError(t, queue.RegisterHandler(service.NewResultsRefresher(results, hub)))
	t.Cleanup(func() {
		queue.Close()
		cancel()
	})

	auth := service.NewAuthService(repo, voters.Builtin(), sessions, adminID, adminPassword)
	h := handlers.New(handlers.Deps{
		DB:       db,
		Auth:     auth,
		Voting:   service.NewVotingService(repo, cache.NewLocalLocker(), results, queue),
		Admin:    service.NewAdminService(repo, results, queue, nil),
		Results:  results,
		Feed:     hub,
		Sessions: sessions,
		Limiter:  limiter,
		Queue:    queue,
	})

	return &testEnv{
		t:      t,
		router: routes.SetupRouter(h, ""),
		db:     db,
		repo:   repo,
		auth:   auth,
		hub:    hub,
	}
}

// seedBallot 创建职位和候选人，返回职位ID和候选人ID
func (e *testEnv) seedBallot(name string, order int, candidates ...string) (uint, []uint) {
	e.t.Helper()
	ctx := context.Background()
	role := models.Role{Name: name, OrderIndex: order}
	require.NoError(e.t, e.repo.SaveRole(ctx, &role))

	ids := make([]uint, 0, len(candidates))
	for _, n := range candidates {
		c := models.Candidate{Name: n, RoleID: role.ID}
		require.NoError(e.t, e.repo.SaveCandidate(ctx, &c))
		ids = append(ids, c.ID)
	}
	return role.ID, ids
}

// do 发送JSON请求，token非空时带上Bearer头
func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// loginResponse 登录接口的响应
type loginResponse struct {
	Token string           `json:"token"`
	User  session.Identity `json:"user"`
	Next  *service.Step    `json:"next"`
}

// login 登录并要求成功
func (e *testEnv) login(id, password string) loginResponse {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"id": id, "password": password})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var resp loginResponse
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}
