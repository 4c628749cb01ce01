package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/interfaces/http/handler"
	"github.com/hackhero/backend/internal/interfaces/http/middleware"
	"github.com/hackhero/backend/internal/interfaces/mcp"

	_ "github.com/hackhero/backend/docs" // Swagger docs
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	cfg *config.Config,
	chatHandler *handler.ChatHandler,
	contextHandler *handler.ContextHandler,
	todoHandler *handler.TodoHandler,
	sessionHandler *handler.SessionHandler,
	artifactHandler *handler.ArtifactHandler,
	exportHandler *handler.ExportHandler,
	providerHandler *handler.ProviderHandler,
	wsHandler *handler.WSHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.EnsureUTF8Body())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api")
	{
		api.POST("/chat-stream", chatHandler.Stream)

		// 待办相关路由
		api.GET("/todos", todoHandler.List)
		api.POST("/todos", todoHandler.Create)
		api.DELETE("/todos", todoHandler.Clear)
		api.PUT("/todos/:id", todoHandler.Update)
		api.DELETE("/todos/:id", todoHandler.Delete)

		// 上下文相关路由
		api.POST("/context/rules", contextHandler.UploadRules)
		api.POST("/context/add-text", contextHandler.AddText)
		api.GET("/context/status", contextHandler.Status)
		api.GET("/context/list", contextHandler.List)
		api.DELETE("/context/:id", contextHandler.Deactivate)

		// 会话相关路由
		api.GET("/chat-sessions", sessionHandler.List)
		api.GET("/chat-sessions/:id", sessionHandler.Detail)
		api.PUT("/chat-sessions/:id/title", sessionHandler.UpdateTitle)
		api.DELETE("/chat-sessions/:id", sessionHandler.Delete)

		// 产物相关路由
		api.GET("/chat-sessions/:id/project-artifacts", artifactHandler.List)
		api.GET("/chat-sessions/:id/project-artifacts/:type", artifactHandler.Get)
		api.POST("/chat-sessions/:id/derive-project-idea", artifactHandler.DeriveProjectIdea)
		api.POST("/chat-sessions/:id/create-tech-stack", artifactHandler.CreateTechStack)
		api.POST("/chat-sessions/:id/summarize-chat-history", artifactHandler.SummarizeChatHistory)

		// 导出
		api.POST("/export/submission-pack", exportHandler.SubmissionPack)

		// 提供方
		api.GET("/ollama/status", providerHandler.Status)
		api.GET("/ollama/model", providerHandler.GetModel)
		api.POST("/ollama/model", providerHandler.SetModel)
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WebSocket 推送
	router.GET("/ws", wsHandler.Serve)

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP 端点：工具注册表对其他本地代理开放
	if mcpServer != nil {
		router.Any("/mcp", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: cfg.Server.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
