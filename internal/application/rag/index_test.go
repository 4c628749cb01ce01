package rag

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/rulectx"
)

// countingEncoder 确定性的向量化测试替身
// 向量按关键词词频构造；Encode 调用次数可观测
type countingEncoder struct {
	calls atomic.Int64
}

var encoderKeywords = []string{"member", "deadline", "demo", "team", "march"}

func (e *countingEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(encoderKeywords))
		for j, kw := range encoderKeywords {
			vec[j] = float32(strings.Count(lower, kw))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *countingEncoder) ModelID() string { return "counting-test-encoder" }

// memoryRules 内存规则仓储替身
type memoryRules struct {
	rows []*rulectx.Row
}

func (m *memoryRules) Insert(source, content, filename, sessionID string) (*rulectx.Row, error) {
	row := &rulectx.Row{
		ID:        int64(len(m.rows) + 1),
		SessionID: sessionID,
		Source:    source,
		Filename:  filename,
		Content:   content,
		Active:    true,
	}
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *memoryRules) ListActive(sessionID string) ([]*rulectx.Row, error) {
	var out []*rulectx.Row
	for _, r := range m.rows {
		if r.Active && r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRules) Deactivate(id int64) error {
	for _, r := range m.rows {
		if r.ID == id {
			r.Active = false
		}
	}
	return nil
}

func (m *memoryRules) DeactivateBySource(sessionID, source string) error {
	for _, r := range m.rows {
		if r.SessionID == sessionID && r.Source == source {
			r.Active = false
		}
	}
	return nil
}

// waitReady 轮询等待索引就绪
func waitReady(t *testing.T, idx *Index, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := idx.Status(sessionID)
		if st.Ready && !st.Building {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("index for session %q never became ready", sessionID)
}

func TestIndex_BuildAndRetrieve(t *testing.T) {
	rules := &memoryRules{}
	_, err := rules.Insert("text", "Teams may have up to 4 members.\n\nDeadline is March 15.", "", "s1")
	require.NoError(t, err)

	encoder := &countingEncoder{}
	idx := NewIndex(rules, encoder, NewCache(t.TempDir()), nil)

	idx.Invalidate("s1")
	waitReady(t, idx, "s1")

	st := idx.Status("s1")
	assert.Equal(t, 2, st.NChunks)
	assert.NotEmpty(t, st.RulesHash)

	hits, ready, err := idx.Retrieve(context.Background(), "s1", "how big can a team be? members", 5)
	require.NoError(t, err)
	assert.True(t, ready)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Text, "4 members")
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1.0) // 分数落在 [0,2]；余弦相似度不超过 1，故最佳命中非负
}

func TestIndex_CacheHitSkipsEncoder(t *testing.T) {
	cacheDir := t.TempDir()

	rules := &memoryRules{}
	_, err := rules.Insert("text", "Teams may have up to 4 members.", "", "s1")
	require.NoError(t, err)

	encoder := &countingEncoder{}
	idx := NewIndex(rules, encoder, NewCache(cacheDir), nil)
	idx.Invalidate("s1")
	waitReady(t, idx, "s1")

	buildCalls := encoder.calls.Load()
	require.Greater(t, buildCalls, int64(0))

	// 新的索引实例模拟进程重启：活动集未变，重建必须整载缓存
	encoder2 := &countingEncoder{}
	idx2 := NewIndex(rules, encoder2, NewCache(cacheDir), nil)
	idx2.Invalidate("s1")
	waitReady(t, idx2, "s1")

	assert.Equal(t, int64(0), encoder2.calls.Load(), "rebuild with unchanged context must not call the embedder")
	assert.Equal(t, idx.Status("s1").RulesHash, idx2.Status("s1").RulesHash)
}

func TestIndex_EmptyContext(t *testing.T) {
	rules := &memoryRules{}
	encoder := &countingEncoder{}
	idx := NewIndex(rules, encoder, NewCache(t.TempDir()), nil)

	hits, ready, err := idx.Retrieve(context.Background(), "nobody", "anything", 5)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Empty(t, hits)
}

func TestIndex_SessionIsolation(t *testing.T) {
	rules := &memoryRules{}
	_, err := rules.Insert("text", "Deadline is March 15.", "", "a")
	require.NoError(t, err)

	encoder := &countingEncoder{}
	idx := NewIndex(rules, encoder, NewCache(t.TempDir()), nil)

	idx.Invalidate("a")
	waitReady(t, idx, "a")

	// 会话 b 没有上下文，不能看到 a 的片段
	hits, ready, err := idx.Retrieve(context.Background(), "b", "deadline", 5)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Empty(t, hits)
}

func TestIndex_InvalidateCoalesces(t *testing.T) {
	rules := &memoryRules{}
	_, err := rules.Insert("text", "Teams may have up to 4 members.", "", "s")
	require.NoError(t, err)

	encoder := &countingEncoder{}
	idx := NewIndex(rules, encoder, NewCache(t.TempDir()), nil)

	for i := 0; i < 10; i++ {
		idx.Invalidate("s")
	}
	waitReady(t, idx, "s")

	st := idx.Status("s")
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.NChunks)
}
