package ingest

import "github.com/google/wire"

// ProviderSet 摄入应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewService,
)
