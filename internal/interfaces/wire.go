package interfaces

import (
	"github.com/google/wire"

	httpIface "github.com/hackhero/backend/internal/interfaces/http"
	"github.com/hackhero/backend/internal/interfaces/http/handler"
	"github.com/hackhero/backend/internal/interfaces/mcp"
)

// HTTPServer 接口层别名，供组合根引用
type HTTPServer = httpIface.HTTPServer

// MCPServer 接口层别名
type MCPServer = mcp.MCPServer

// ProviderSet 接口层 ProviderSet
var ProviderSet = wire.NewSet(
	handler.ProviderSet,
	httpIface.NewServer,
	mcp.ProviderSet,
)
