package llm

import "github.com/google/wire"

// ProviderSet LLM 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	NewClient,
	wire.Bind(new(Streamer), new(*Client)),
	wire.Bind(new(Completer), new(*Client)),
	wire.Bind(new(ModelSelector), new(*Client)),
)
