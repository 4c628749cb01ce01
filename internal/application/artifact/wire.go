package artifact

import "github.com/google/wire"

// ProviderSet 产物应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
)
