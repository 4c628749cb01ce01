package discovery

import "github.com/google/wire"

// ProviderSet Discovery 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewAdvertiser,
)
