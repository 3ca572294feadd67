package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kpr-voting-backend/cache"
	"kpr-voting-backend/config"
	"kpr-voting-backend/database"
	"kpr-voting-backend/handlers"
	"kpr-voting-backend/logger"
	"kpr-voting-backend/mq"
	"kpr-voting-backend/repository"
	"kpr-voting-backend/routes"
	"kpr-voting-backend/service"
	"kpr-voting-backend/session"
	"kpr-voting-backend/storage"
	"kpr-voting-backend/voters"
	"kpr-voting-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// 结果快照在Redis中的缓存时间
const snapshotTTL = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	logger.Configure(logger.ParseLevel(cfg.LogLevel), cfg.LogFile)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化数据库连接
	if err := database.InitDB(cfg); err != nil {
		log.Fatal().Err(err).Msg("无法初始化数据库")
	}
	repo := repository.NewElectionRepository(database.DB)

	// 初始化Redis连接，不可用时使用进程内实现
	cache.InitRedis(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	var (
		sessions  session.Store
		limiter   service.RateLimiter
		snapshots service.SnapshotStore
	)
	redisClient, redisErr := cache.GetClient()
	if redisErr == nil {
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL)
		limiter = cache.NewTokenBucketRateLimiter(redisClient, "login", cfg.LoginRate, cfg.LoginBurst)
		snapshots = cache.NewSnapshotCache(redisClient, "results", snapshotTTL)
	} else {
		log.Warn().Msg("Redis不可用，会话和限流使用内存实现")
		sessions = session.NewMemoryStore(cfg.SessionTTL)
		limiter = service.NewLocalRateLimiter(cfg.LoginRate, cfg.LoginBurst)
	}

	// 选民名单
	directory := voters.Builtin()
	if cfg.VotersFile != "" {
		if directory, err = voters.LoadFile(cfg.VotersFile); err != nil {
			log.Fatal().Err(err).Str("file", cfg.VotersFile).Msg("加载选民名单失败")
		}
	}
	log.Info().Int("voters", directory.Len()).Msg("选民名单已加载")

	photos, err := storage.NewDiskBucket(cfg.UploadDir, storage.PhotoBucket, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化照片存储失败")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 结果推送：事件消费者刷新Hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	results := service.NewResultsService(repo, snapshots)
	queue := mq.NewMQAdapter(redisClient, cfg.RocketMQNameServer)
	if err := queue.RegisterHandler(service.NewResultsRefresher(results, hub)); err != nil {
		log.Error().Err(err).Msg("注册消息处理函数失败")
	}
	if initial, err := results.Snapshot(ctx); err == nil {
		hub.Publish(initial)
	}

	auth := service.NewAuthService(repo, directory, sessions, cfg.AdminID, cfg.AdminPassword)
	voting := service.NewVotingService(repo, cache.NewLocker(), results, queue)
	admin := service.NewAdminService(repo, results, queue, photos)

	// 启动时清理过期会话锁
	if _, err := auth.ReapStaleSessions(ctx, cfg.StaleSessionAge); err != nil {
		log.Error().Err(err).Msg("清理过期会话锁失败")
	}
	if cfg.ReaperInterval > 0 {
		auth.StartReaper(ctx, cfg.ReaperInterval, cfg.StaleSessionAge)
	}

	h := handlers.New(handlers.Deps{
		DB:       database.DB,
		Auth:     auth,
		Voting:   voting,
		Admin:    admin,
		Results:  results,
		Feed:     hub,
		Sessions: sessions,
		Limiter:  limiter,
		Queue:    queue,
	})

	router := routes.SetupRouter(h, cfg.UploadDir)
	srv := routes.StartServer(router, cfg.ServerPort)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("关闭服务器...")

	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器强制关闭")
	}

	stop()
	queue.Close()
	database.CloseDB()
	cache.CloseRedis()

	log.Info().Msg("服务器优雅关闭")
}
