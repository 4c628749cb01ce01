// @title HackHero Backend API
// @version 0.1.0
// @description 离线本地优先的黑客松助理后端
// @BasePath /api
// @schemes http
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hackhero/backend/internal/infrastructure/config"
	applog "github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/infrastructure/storage"
	"github.com/hackhero/backend/internal/wire"
)

// 退出码约定
const (
	exitOK        = 0
	exitFatal     = 1
	exitConfig    = 2
	exitMigration = 3
)

func main() {
	// 初始化日志系统
	applog.Init(nil)
	logger := applog.GetLogger()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration",
			"error", err,
		)
		os.Exit(exitConfig)
	}

	switch command {
	case "serve":
		os.Exit(runServe(cfg))
	case "migrate":
		os.Exit(runMigrate(cfg))
	case "health":
		os.Exit(runHealth(cfg))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (expected serve|migrate|health)\n", command)
		os.Exit(exitConfig)
	}
}

// runServe 迁移 + 启动全部服务 + 优雅关闭
func runServe(cfg *config.Config) int {
	logger := applog.GetLogger()

	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		logger.Error("Failed to open database",
			"error", err,
		)
		return exitFatal
	}
	if err := storage.RunMigrations(db, cfg.MigrationsDir()); err != nil {
		_ = db.Close()
		logger.Error("Migration failed",
			"error", err,
		)
		return exitMigration
	}
	_ = db.Close()

	// Wire 自动生成的初始化函数
	app, err := wire.InitializeApp(cfg)
	if err != nil {
		logger.Error("Failed to initialize application",
			"error", err,
		)
		return exitFatal
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down application...", "signal", sig.String())
		if err := app.Stop(); err != nil {
			logger.Error("Error during application shutdown",
				"error", err,
			)
		}
		logger.Info("Application stopped")
		return exitOK
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server exited",
				"error", err,
			)
			return exitFatal
		}
		return exitOK
	}
}

// runMigrate 仅执行迁移
func runMigrate(cfg *config.Config) int {
	logger := applog.GetLogger()

	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		logger.Error("Failed to open database",
			"error", err,
		)
		return exitFatal
	}
	defer func() { _ = db.Close() }()

	if err := storage.RunMigrations(db, cfg.MigrationsDir()); err != nil {
		logger.Error("Migration failed",
			"error", err,
		)
		return exitMigration
	}

	logger.Info("Migrations applied")
	return exitOK
}

// runHealth 探测运行中的实例
func runHealth(cfg *config.Config) int {
	port := cfg.Server.HTTPPort
	if !strings.Contains(port, ":") {
		port = ":" + port
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://127.0.0.1" + port + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return exitFatal
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check returned status %d\n", resp.StatusCode)
		return exitFatal
	}

	fmt.Println("ok")
	return exitOK
}
