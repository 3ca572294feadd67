package routes

import (
	"net/http"
	"time"

	"kpr-voting-backend/handlers"
	"kpr-voting-backend/session"
	"kpr-voting-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置和配置Gin路由，uploadDir为空时不提供上传文件
func SetupRouter(h *handlers.Handler, uploadDir string) *gin.Engine {
	// 创建Gin路由器
	router := gin.Default()

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 候选人照片
	if uploadDir != "" {
		router.Static("/uploads", uploadDir)
	}

	ws := websocket.NewHandler(h.Feed)

	// 定义API路由
	api := router.Group("/api")
	{
		// 健康检查和指标端点
		api.GET("/health", handlers.HealthCheck)
		api.GET("/status", h.SystemStatus)
		api.GET("/metrics", gin.WrapH(promhttp.Handler()))

		auth := api.Group("/auth")
		{
			auth.POST("/login", h.LoginRateLimit(), h.Login)
			auth.POST("/logout", h.RequireSession(""), h.Logout)
			auth.GET("/me", h.RequireSession(""), h.Me)
		}

		// 选民投票流程
		vote := api.Group("/vote", h.RequireSession(session.KindVoter))
		{
			vote.GET("/resume", h.Resume)
			vote.GET("/roles/:id", h.EnterRole)
			vote.POST("/roles/:id/submit", h.SubmitVote)
			vote.POST("/roles/:id/continue", h.ContinueRole)
			vote.GET("/receipt", h.Receipt)
		}

		// 管理员相关API
		admin := api.Group("/admin", h.RequireSession(session.KindAdmin))
		{
			admin.GET("/dashboard", h.Dashboard)

			admin.GET("/roles", h.ListRoles)
			admin.POST("/roles", h.CreateRole)
			admin.PUT("/roles/:id", h.UpdateRole)
			admin.DELETE("/roles/:id", h.DeleteRole)

			admin.GET("/candidates", h.ListCandidates)
			admin.POST("/candidates", h.CreateCandidate)
			admin.POST("/candidates/photo", h.UploadPhoto)
			admin.PUT("/candidates/:id", h.UpdateCandidate)
			admin.DELETE("/candidates/:id", h.DeleteCandidate)

			// 实时结果（轮询、WebSocket和SSE）
			admin.GET("/results", h.GetResults)
			admin.GET("/results/ws", ws.ServeResults)
			admin.GET("/results/live", h.LiveResults)

			admin.GET("/status", h.VotingStatus)
			admin.POST("/reset", h.ResetAll)
			admin.POST("/voters/:id/reset", h.ResetVoter)
			admin.POST("/recount", h.Recount)
			admin.POST("/queue/retry", h.RetryDeadLetters)
		}
	}

	return router
}

// StartServer 在port上启动HTTP服务器
func StartServer(router *gin.Engine, port string) *Server {
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Info().Str("addr", addr).Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	return srv
}
