package application

import (
	"github.com/google/wire"

	artifactApp "github.com/hackhero/backend/internal/application/artifact"
	chatApp "github.com/hackhero/backend/internal/application/chat"
	exportApp "github.com/hackhero/backend/internal/application/export"
	ingestApp "github.com/hackhero/backend/internal/application/ingest"
	ragApp "github.com/hackhero/backend/internal/application/rag"
	toolsApp "github.com/hackhero/backend/internal/application/tools"
	"github.com/hackhero/backend/internal/infrastructure/websocket"
)

// ProviderSet 应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ragApp.ProviderSet,
	ingestApp.ProviderSet,
	artifactApp.ProviderSet,
	toolsApp.ProviderSet,
	chatApp.ProviderSet,
	exportApp.ProviderSet,
	// 接口绑定：索引状态推送走 WebSocket Hub
	wire.Bind(new(ragApp.StatusNotifier), new(*websocket.Hub)),
)
