package chat

import "github.com/google/wire"

// ProviderSet 聊天应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewOrchestrator,
)
