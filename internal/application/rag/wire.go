package rag

import (
	"github.com/google/wire"
	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/infrastructure/config"
)

// NewCacheFromConfig 按配置创建检索缓存
func NewCacheFromConfig(cfg *config.Config) *Cache {
	return NewCache(cfg.RAGCacheDir())
}

// ProviderSet RAG 应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewCacheFromConfig,
	NewIndex,
	wire.Bind(new(domainRAG.Retriever), new(*Index)),
)
