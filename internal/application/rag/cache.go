package rag

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	domainRAG "github.com/hackhero/backend/internal/domain/rag"
)

// 缓存文件名
const (
	cacheChunksFile     = "chunks.json"
	cacheEmbeddingsFile = "embeddings.bin"
	cacheMetaFile       = "meta.json"
)

// cacheMeta 缓存元信息
type cacheMeta struct {
	NChunks          int    `json:"n_chunks"`
	Dim              int    `json:"dim"`
	EmbeddingModelID string `json:"embedding_model_id"`
	CreatedAt        string `json:"created_at"`
}

// Cache 按内容哈希寻址的检索缓存
// 条目只写不改；过期条目可按年龄回收
type Cache struct {
	root string
}

// NewCache 创建缓存，root 为 rag_cache 目录
func NewCache(root string) *Cache {
	return &Cache{root: root}
}

// dir 哈希对应的缓存目录
func (c *Cache) dir(rulesHash string) string {
	return filepath.Join(c.root, rulesHash)
}

// Load 加载缓存条目；缺失或维度不符时返回 ok=false
func (c *Cache) Load(rulesHash string, wantDim int) (chunks []domainRAG.Chunk, vectors [][]float32, ok bool, err error) {
	dir := c.dir(rulesHash)

	metaData, err := os.ReadFile(filepath.Join(dir, cacheMetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("failed to read cache meta: %w", err)
	}

	var meta cacheMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, false, fmt.Errorf("failed to parse cache meta: %w", err)
	}
	if wantDim > 0 && meta.Dim != wantDim {
		return nil, nil, false, nil
	}

	chunksData, err := os.ReadFile(filepath.Join(dir, cacheChunksFile))
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to read cached chunks: %w", err)
	}
	if err := json.Unmarshal(chunksData, &chunks); err != nil {
		return nil, nil, false, fmt.Errorf("failed to parse cached chunks: %w", err)
	}

	binData, err := os.ReadFile(filepath.Join(dir, cacheEmbeddingsFile))
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to read cached embeddings: %w", err)
	}
	if len(binData) != meta.NChunks*meta.Dim*4 {
		return nil, nil, false, fmt.Errorf("cached embeddings size mismatch: got %d bytes, want %d", len(binData), meta.NChunks*meta.Dim*4)
	}
	if len(chunks) != meta.NChunks {
		return nil, nil, false, fmt.Errorf("cached chunk count mismatch: got %d, want %d", len(chunks), meta.NChunks)
	}

	vectors = make([][]float32, meta.NChunks)
	for i := 0; i < meta.NChunks; i++ {
		vec := make([]float32, meta.Dim)
		for j := 0; j < meta.Dim; j++ {
			off := (i*meta.Dim + j) * 4
			bits := binary.LittleEndian.Uint32(binData[off : off+4])
			vec[j] = math.Float32frombits(bits)
		}
		vectors[i] = vec
	}

	return chunks, vectors, true, nil
}

// Save 写入缓存条目
// 先写临时目录再原子重命名，避免读到半写状态
func (c *Cache) Save(rulesHash, modelID string, chunks []domainRAG.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	tmpDir, err := os.MkdirTemp(c.root, "build-*")
	if err != nil {
		if mkErr := os.MkdirAll(c.root, 0755); mkErr != nil {
			return fmt.Errorf("failed to create cache root: %w", mkErr)
		}
		tmpDir, err = os.MkdirTemp(c.root, "build-*")
		if err != nil {
			return fmt.Errorf("failed to create cache temp dir: %w", err)
		}
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	chunksData, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, cacheChunksFile), chunksData, 0644); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}

	binData := make([]byte, len(vectors)*dim*4)
	for i, vec := range vectors {
		if len(vec) != dim {
			return fmt.Errorf("vector %d has dim %d, want %d", i, len(vec), dim)
		}
		for j, v := range vec {
			off := (i*dim + j) * 4
			binary.LittleEndian.PutUint32(binData[off:off+4], math.Float32bits(v))
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, cacheEmbeddingsFile), binData, 0644); err != nil {
		return fmt.Errorf("failed to write embeddings: %w", err)
	}

	meta := cacheMeta{
		NChunks:          len(chunks),
		Dim:              dim,
		EmbeddingModelID: modelID,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal cache meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, cacheMetaFile), metaData, 0644); err != nil {
		return fmt.Errorf("failed to write cache meta: %w", err)
	}

	target := c.dir(rulesHash)
	if _, err := os.Stat(target); err == nil {
		// 内容寻址：同哈希条目已存在则无需覆盖
		return nil
	}
	if err := os.Rename(tmpDir, target); err != nil {
		return fmt.Errorf("failed to publish cache entry: %w", err)
	}
	return nil
}

// GC 回收早于 maxAge 的缓存条目
func (c *Cache) GC(maxAge time.Duration) (removed int, err error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
