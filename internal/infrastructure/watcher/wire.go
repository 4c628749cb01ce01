package watcher

import "github.com/google/wire"

// ProviderSet Watcher 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewRulesWatcher,
)
