package fetch

import "github.com/google/wire"

// ProviderSet Fetch 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewURLFetcher,
)
