package server

import (
	"context"
	"net/http"
	"os"

	"streamvault/app/config"
	"streamvault/app/database"
	"streamvault/app/filewatcher"
	"streamvault/app/handler"
	"streamvault/app/logger"
	"streamvault/app/middleware"
	"streamvault/app/service"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config    *config.Config
	Logger    *logger.Logger
	gin       *gin.Engine
	http      *http.Server
	hub       *service.NotifyHub
	processor *service.VideoProcessor
	watcher   *filewatcher.UploadWatcher
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	// 通知中心和处理器在这里构造并注入各个处理器，不使用全局状态
	hub := service.NewNotifyHub(log)
	inspector := service.NewFFmpegInspector(&cfg.Processing, log)
	processor := service.NewVideoProcessor(database.GetDB(), &cfg.Processing, log, hub, inspector)

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:    cfg,
		Logger:    log,
		hub:       hub,
		processor: processor,
	}

	// 设置路由
	s.setupRoutes()

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	// 确保上传目录存在
	if err := os.MkdirAll(s.Config.Storage.UploadDir, 0755); err != nil {
		return err
	}

	// 启动僵尸任务清理器
	if err := s.processor.StartSweeper(s.Config.Processing.SweepInterval); err != nil {
		return err
	}

	// 启动上传目录监控
	if s.Config.Storage.WatchEnabled {
		watcher, err := filewatcher.New(s.Config.Storage.UploadDir, database.GetDB(), s.Logger)
		if err != nil {
			s.Logger.Errorf("创建上传目录监控失败: %v", err)
		} else if err := watcher.Start(); err != nil {
			s.Logger.Errorf("启动上传目录监控失败: %v", err)
		} else {
			s.watcher = watcher
		}
	}

	return s.http.ListenAndServe()
}

// Shutdown 关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	// 停止上传目录监控
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.Logger.Errorf("停止上传目录监控失败: %v", err)
		}
	}

	// 停止清理器并等待处理任务结束
	s.processor.StopSweeper()

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	// 创建处理器实例
	authHandler := handler.NewAuthHandler(s.Config)
	videoHandler := handler.NewVideoHandler(s.Config, s.Logger, s.processor)
	streamHandler := handler.NewStreamHandler(s.Logger)
	notifyHandler := handler.NewNotifyHandler(s.hub, s.Logger)

	// 健康检查
	s.gin.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Backend API is running"})
	})

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 视频管理相关路由
		videos := protected.Group("/videos")
		{
			videos.POST("/upload", middleware.RequireRoles("editor", "admin"), videoHandler.Upload)
			videos.GET("/", videoHandler.List)
			videos.GET("/:id", videoHandler.Get)
			videos.DELETE("/:id", middleware.RequireRoles("editor", "admin"), videoHandler.Delete)
			videos.POST("/:id/reprocess", middleware.RequireRoles("editor", "admin"), videoHandler.Reprocess)
		}
	}

	// 流媒体路由，额外支持 token 查询参数认证
	stream := s.gin.Group("/stream")
	stream.Use(middleware.StreamAuth(s.Config))
	{
		stream.GET("/:id", streamHandler.Stream)
		stream.GET("/:id/info", streamHandler.Info)
	}

	// 进度通知订阅（EventSource 同样只能通过 URL 传令牌）
	notifications := s.gin.Group("/notifications")
	notifications.Use(middleware.StreamAuth(s.Config))
	{
		notifications.GET("/stream", notifyHandler.Stream)
	}
}
