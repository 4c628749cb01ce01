package discovery

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// mDNS 服务类型
const serviceType = "_hackhero._tcp"

// Advertiser 本机守护进程的 mDNS 广播器
// 局域网内的其他客户端可据此发现本地代理服务
type Advertiser struct {
	mu      sync.Mutex
	server  *zeroconf.Server
	port    int
	enabled bool
	logger  *slog.Logger
}

// NewAdvertiser 创建 mDNS 广播器
func NewAdvertiser(cfg *config.Config) *Advertiser {
	port := 8000
	if p := strings.TrimPrefix(cfg.Server.HTTPPort, ":"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	return &Advertiser{
		port:    port,
		enabled: cfg.Server.AdvertiseMDNS,
		logger:  log.NewModuleLogger("discovery", "advertiser"),
	}
}

// Start 开始广播；未启用时为空操作
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return nil
	}
	if a.server != nil {
		return fmt.Errorf("advertiser is already running")
	}

	server, err := zeroconf.Register(
		"hackhero",
		serviceType,
		"local.",
		a.port,
		[]string{"version=0.1.0"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mdns service: %w", err)
	}

	a.server = server
	a.logger.Info("mDNS advertisement started",
		"service", serviceType,
		"port", a.port,
	)
	return nil
}

// Stop 停止广播
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Info("mDNS advertisement stopped")
	}
}
