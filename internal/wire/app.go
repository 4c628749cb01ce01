package wire

import (
	"database/sql"

	"log/slog"

	"github.com/hackhero/backend/internal/infrastructure/discovery"
	applog "github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/infrastructure/watcher"
	"github.com/hackhero/backend/internal/infrastructure/websocket"
	"github.com/hackhero/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer   *interfaces.HTTPServer
	MCPServer    *interfaces.MCPServer
	wsHub        *websocket.Hub
	rulesWatcher *watcher.RulesWatcher
	advertiser   *discovery.Advertiser
	db           *sql.DB
	logger       *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	rulesWatcher *watcher.RulesWatcher,
	advertiser *discovery.Advertiser,
	db *sql.DB,
) *App {
	return &App{
		HTTPServer:   httpServer,
		MCPServer:    mcpServer,
		wsHub:        wsHub,
		rulesWatcher: rulesWatcher,
		advertiser:   advertiser,
		db:           db,
		logger:       applog.NewModuleLogger("app", "main"),
	}
}

// DB 数据库连接（迁移入口使用）
func (a *App) DB() *sql.DB {
	return a.db
}

// Start 启动所有后台服务并阻塞在 HTTP 监听上
func (a *App) Start() error {
	a.logger.Info("Starting HackHero backend application")

	// 启动 WebSocket Hub
	if a.wsHub != nil {
		a.wsHub.Start()
	}

	// 启动种子规则监听
	if a.rulesWatcher != nil {
		if err := a.rulesWatcher.Start(); err != nil {
			a.logger.Error("Failed to start rules watcher",
				"error", err,
			)
		}
	}

	// 启动 mDNS 广播（按配置）
	if a.advertiser != nil {
		if err := a.advertiser.Start(); err != nil {
			a.logger.Error("Failed to start mDNS advertiser",
				"error", err,
			)
		}
	}

	return a.HTTPServer.Start()
}

// Stop 优雅停止所有服务
func (a *App) Stop() error {
	if a.advertiser != nil {
		a.advertiser.Stop()
	}
	if a.rulesWatcher != nil {
		a.rulesWatcher.Stop()
	}

	err := a.HTTPServer.Stop()

	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
