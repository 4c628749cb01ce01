package infrastructure

import (
	"database/sql"

	"github.com/google/wire"

	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/discovery"
	"github.com/hackhero/backend/internal/infrastructure/embedding"
	"github.com/hackhero/backend/internal/infrastructure/extract"
	"github.com/hackhero/backend/internal/infrastructure/fetch"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/storage"
	"github.com/hackhero/backend/internal/infrastructure/watcher"
	"github.com/hackhero/backend/internal/infrastructure/websocket"
)

// ProvideDB 打开数据库连接
func ProvideDB(cfg *config.Config) (*sql.DB, error) {
	return storage.OpenDB(cfg.DBPath())
}

// ProviderSet 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,
	storage.ProviderSet,
	llm.ProviderSet,
	embedding.ProviderSet,
	extract.ProviderSet,
	fetch.ProviderSet,
	websocket.ProviderSet,
	watcher.ProviderSet,
	discovery.ProviderSet,
)
