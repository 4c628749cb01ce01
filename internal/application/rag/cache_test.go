package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/hackhero/backend/internal/domain/rag"
)

func TestCache_RoundTrip(t *testing.T) {
	cache := NewCache(t.TempDir())

	chunks := []domainRAG.Chunk{
		{ChunkID: 0, Text: "first", SourceRowID: 1},
		{ChunkID: 1, Text: "second", SourceRowID: 2},
	}
	vectors := [][]float32{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0.6},
	}

	require.NoError(t, cache.Save("hash-1", "test-model", chunks, vectors))

	gotChunks, gotVectors, ok, err := cache.Load("hash-1", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, chunks, gotChunks)
	assert.Equal(t, vectors, gotVectors)
}

func TestCache_MissingEntry(t *testing.T) {
	cache := NewCache(t.TempDir())

	_, _, ok, err := cache.Load("absent", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_DimensionMismatch(t *testing.T) {
	cache := NewCache(t.TempDir())

	chunks := []domainRAG.Chunk{{ChunkID: 0, Text: "x", SourceRowID: 1}}
	vectors := [][]float32{{1, 0}}
	require.NoError(t, cache.Save("hash-2", "test-model", chunks, vectors))

	// 维度不符的缓存视为未命中，而不是错误
	_, _, ok, err := cache.Load("hash-2", 384)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_SaveIsIdempotent(t *testing.T) {
	cache := NewCache(t.TempDir())

	chunks := []domainRAG.Chunk{{ChunkID: 0, Text: "x", SourceRowID: 1}}
	vectors := [][]float32{{1, 0}}

	require.NoError(t, cache.Save("hash-3", "test-model", chunks, vectors))
	// 内容寻址：同哈希重复写入不报错也不破坏已有条目
	require.NoError(t, cache.Save("hash-3", "test-model", chunks, vectors))

	_, _, ok, err := cache.Load("hash-3", 2)
	require.NoError(t, err)
	assert.True(t, ok)
}
