package embedding

import "github.com/google/wire"

// ProviderSet Embedding 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewClient,
	wire.Bind(new(Encoder), new(*Client)),
)
