package storage

import "github.com/google/wire"

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewSessionRepository,     // 会话仓储
	NewMessageRepository,     // 消息仓储
	NewTodoRepository,        // 待办仓储
	NewArtifactRepository,    // 产物仓储
	NewRuleContextRepository, // 规则上下文仓储
	NewSettingRepository,     // 设置仓储
)
