package rag

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/domain/rulectx"
	"github.com/hackhero/backend/internal/infrastructure/embedding"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// StatusNotifier 索引状态变化通知（推送给已连接的前端）
type StatusNotifier interface {
	PublishContextStatus(sessionID string, status domainRAG.Status)
}

// snapshot 一次构建产出的不可变索引结构
// 查询方只读快照；发布新快照是构建对可见状态的唯一写入
type snapshot struct {
	rulesHash string
	chunks    []domainRAG.Chunk
	vectors   [][]float32 // L2 归一化后的向量，内积即余弦相似度
}

// slot 单个会话（含无会话槽 ""）的索引状态
type slot struct {
	mu       sync.Mutex
	building bool
	pending  bool   // 构建期间又有重建请求，合并为一次
	seq      uint64 // 单调递增的重建请求号，后写者胜
	current  atomic.Pointer[snapshot]
}

// Index 会话级检索索引管理器
type Index struct {
	rules   rulectx.Repository
	encoder embedding.Encoder
	cache   *Cache
	notify  StatusNotifier
	logger  *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot
	dim   int // 首次构建后已知的向量维度
}

// NewIndex 创建索引管理器
func NewIndex(rules rulectx.Repository, encoder embedding.Encoder, cache *Cache, notify StatusNotifier) *Index {
	return &Index{
		rules:   rules,
		encoder: encoder,
		cache:   cache,
		notify:  notify,
		slots:   make(map[string]*slot),
		logger:  log.NewModuleLogger("rag", "index"),
	}
}

// getSlot 取或建会话槽
func (x *Index) getSlot(sessionID string) *slot {
	x.mu.Lock()
	defer x.mu.Unlock()
	s, ok := x.slots[sessionID]
	if !ok {
		s = &slot{}
		x.slots[sessionID] = s
	}
	return s
}

// Invalidate 请求异步重建
// 构建进行中时只置位合并标记；同一槽最多一个在建构建
func (x *Index) Invalidate(sessionID string) {
	s := x.getSlot(sessionID)

	s.mu.Lock()
	s.seq++
	seq := s.seq
	if s.building {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.building = true
	s.mu.Unlock()

	x.publishStatus(sessionID)
	go x.build(sessionID, s, seq)
}

// build 执行一次重建；结果仅在请求号仍是最新时发布
func (x *Index) build(sessionID string, s *slot, seq uint64) {
	snap, err := x.buildSnapshot(context.Background(), sessionID)
	if err != nil {
		x.logger.Error("Index rebuild failed",
			"session_id", sessionID,
			"error", err,
		)
	}

	s.mu.Lock()
	stale := seq != s.seq
	if !stale && err == nil {
		s.current.Store(snap)
	}
	rerun := s.pending
	s.pending = false
	if rerun {
		s.seq++
		seq = s.seq
	} else {
		s.building = false
	}
	s.mu.Unlock()

	if stale {
		x.logger.Debug("Discarding stale index build",
			"session_id", sessionID,
			"seq", seq,
		)
	}

	x.publishStatus(sessionID)

	if rerun {
		x.build(sessionID, s, seq)
	}
}

// buildSnapshot 读活动集、查缓存或向量化、产出快照
func (x *Index) buildSnapshot(ctx context.Context, sessionID string) (*snapshot, error) {
	rows, err := x.rules.ListActive(sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &snapshot{}, nil
	}

	hash := RulesHash(rows)

	x.mu.Lock()
	wantDim := x.dim
	x.mu.Unlock()

	chunks, vectors, ok, err := x.cache.Load(hash, wantDim)
	if err != nil {
		x.logger.Warn("Cache load failed, recomputing",
			"rules_hash", hash,
			"error", err,
		)
	}
	if ok {
		x.logger.Info("Index loaded from cache",
			"session_id", sessionID,
			"rules_hash", hash,
			"n_chunks", len(chunks),
		)
		x.rememberDim(vectors)
		return &snapshot{rulesHash: hash, chunks: chunks, vectors: vectors}, nil
	}

	chunks = BuildChunks(rows)
	if len(chunks) == 0 {
		return &snapshot{rulesHash: hash}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err = x.encoder.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		normalize(v)
	}
	x.rememberDim(vectors)

	if err := x.cache.Save(hash, x.encoder.ModelID(), chunks, vectors); err != nil {
		x.logger.Warn("Cache save failed",
			"rules_hash", hash,
			"error", err,
		)
	}

	x.logger.Info("Index rebuilt",
		"session_id", sessionID,
		"rules_hash", hash,
		"n_chunks", len(chunks),
	)

	return &snapshot{rulesHash: hash, chunks: chunks, vectors: vectors}, nil
}

// rememberDim 记录向量维度，用于后续缓存校验
func (x *Index) rememberDim(vectors [][]float32) {
	if len(vectors) == 0 {
		return
	}
	x.mu.Lock()
	if x.dim == 0 {
		x.dim = len(vectors[0])
	}
	x.mu.Unlock()
}

// Retrieve 返回 top-k 命中
// 索引未就绪时返回空结果并触发一次重建请求
func (x *Index) Retrieve(ctx context.Context, sessionID, query string, k int) ([]domainRAG.RetrievedChunk, bool, error) {
	if k <= 0 {
		k = 5
	}

	s := x.getSlot(sessionID)
	snap := s.current.Load()
	if snap == nil || len(snap.chunks) == 0 {
		s.mu.Lock()
		building := s.building
		s.mu.Unlock()
		if snap == nil && !building {
			x.Invalidate(sessionID)
		}
		return nil, snap != nil, nil
	}

	qVecs, err := x.encoder.Encode(ctx, []string{query})
	if err != nil {
		return nil, true, err
	}
	if len(qVecs) == 0 || len(qVecs[0]) == 0 {
		return nil, true, nil
	}
	qv := qVecs[0]
	normalize(qv)

	type scored struct {
		idx   int
		score float32
	}
	results := make([]scored, 0, len(snap.vectors))
	for i, v := range snap.vectors {
		if len(v) != len(qv) {
			continue
		}
		results = append(results, scored{idx: i, score: dot(qv, v)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > k {
		results = results[:k]
	}

	hits := make([]domainRAG.RetrievedChunk, 0, len(results))
	for _, r := range results {
		c := snap.chunks[r.idx]
		hits = append(hits, domainRAG.RetrievedChunk{
			ChunkID: c.ChunkID,
			Text:    c.Text,
			Score:   r.score,
		})
	}
	return hits, true, nil
}

// Status 当前槽状态
func (x *Index) Status(sessionID string) domainRAG.Status {
	s := x.getSlot(sessionID)

	s.mu.Lock()
	building := s.building
	s.mu.Unlock()

	snap := s.current.Load()
	st := domainRAG.Status{Building: building}
	if snap != nil {
		st.Ready = len(snap.chunks) > 0
		st.NChunks = len(snap.chunks)
		st.RulesHash = snap.rulesHash
	}
	return st
}

// Drop 丢弃会话槽的内存索引（会话删除时调用，防止跨会话泄漏）
func (x *Index) Drop(sessionID string) {
	x.mu.Lock()
	delete(x.slots, sessionID)
	x.mu.Unlock()
}

// publishStatus 推送状态变化
func (x *Index) publishStatus(sessionID string) {
	if x.notify == nil {
		return
	}
	x.notify.PublishContextStatus(sessionID, x.Status(sessionID))
}

// normalize 原地 L2 归一化
func normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
}

// dot 内积
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// 编译时检查接口实现
var _ domainRAG.Retriever = (*Index)(nil)
