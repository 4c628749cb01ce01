package handler

import "github.com/google/wire"

// ProviderSet HTTP Handler 层 ProviderSet
var ProviderSet = wire.NewSet(
	NewChatHandler,
	NewContextHandler,
	NewTodoHandler,
	NewSessionHandler,
	NewArtifactHandler,
	NewExportHandler,
	NewProviderHandler,
	NewWSHandler,
)
