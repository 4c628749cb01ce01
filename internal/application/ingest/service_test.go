package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/domain/rulectx"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/extract"
	"github.com/hackhero/backend/internal/infrastructure/fetch"
	"github.com/hackhero/backend/internal/infrastructure/storage"
)

// recordingRetriever 记录失效请求的检索替身
type recordingRetriever struct {
	invalidations atomic.Int64
}

func (r *recordingRetriever) Retrieve(ctx context.Context, sessionID, query string, k int) ([]domainRAG.RetrievedChunk, bool, error) {
	return nil, false, nil
}

func (r *recordingRetriever) Status(sessionID string) domainRAG.Status {
	return domainRAG.Status{}
}

func (r *recordingRetriever) Invalidate(sessionID string) {
	r.invalidations.Add(1)
}

func setupIngest(t *testing.T) (*Service, rulectx.Repository, *recordingRetriever) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.OpenDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(db, ""))
	t.Cleanup(func() { _ = db.Close() })

	rules := storage.NewRuleContextRepository(db)

	cfg := config.NewConfig()
	cfg.Ingest.MaxURLBytes = 1024

	retriever := &recordingRetriever{}
	svc := NewService(rules, extract.NewService(cfg, nil), fetch.NewURLFetcher(cfg), retriever)
	return svc, rules, retriever
}

func TestAddText_WritesRowAndInvalidates(t *testing.T) {
	svc, rules, retriever := setupIngest(t)

	row, err := svc.AddText(context.Background(), "  Teams may have up to 4 members.  ", "s1")
	require.NoError(t, err)
	assert.Equal(t, rulectx.SourceText, row.Source)
	assert.Equal(t, "Teams may have up to 4 members.", row.Content)

	rows, err := rules.ListActive("s1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int64(1), retriever.invalidations.Load())
}

func TestAddText_EmptyRejected(t *testing.T) {
	svc, rules, retriever := setupIngest(t)

	_, err := svc.AddText(context.Background(), "   ", "s1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	rows, err := rules.ListActive("s1")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int64(0), retriever.invalidations.Load())
}

func TestAddText_URLFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Deadline is March 15."))
	}))
	defer srv.Close()

	svc, rules, _ := setupIngest(t)

	row, err := svc.AddText(context.Background(), srv.URL, "s1")
	require.NoError(t, err)
	assert.Equal(t, rulectx.SourceURL, row.Source)
	assert.Equal(t, srv.URL, row.Filename)
	assert.Contains(t, row.Content, "March 15")

	rows, err := rules.ListActive("s1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAddText_URLRejectionWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x00, 0x01})
	}))
	defer srv.Close()

	svc, rules, retriever := setupIngest(t)

	_, err := svc.AddText(context.Background(), srv.URL, "s1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedMime))

	// 失败时不写库、不触发重建
	rows, err := rules.ListActive("s1")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int64(0), retriever.invalidations.Load())
}

func TestAddFile_PlainText(t *testing.T) {
	svc, rules, retriever := setupIngest(t)

	row, err := svc.AddFile(context.Background(), "rules.txt", []byte("Submissions need a demo video."), "s2")
	require.NoError(t, err)
	assert.Equal(t, rulectx.SourceFile, row.Source)
	assert.Equal(t, "rules.txt", row.Filename)

	rows, err := rules.ListActive("s2")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int64(1), retriever.invalidations.Load())
}

func TestReplaceSeed(t *testing.T) {
	svc, rules, _ := setupIngest(t)

	require.NoError(t, svc.ReplaceSeed(context.Background(), "seed v1"))
	require.NoError(t, svc.ReplaceSeed(context.Background(), "seed v2"))

	rows, err := rules.ListActive("")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "seed v2", rows[0].Content)
	assert.Equal(t, rulectx.SourceInitial, rows[0].Source)
}
