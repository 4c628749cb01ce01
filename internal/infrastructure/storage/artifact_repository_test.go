package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/artifact"
)

func TestArtifactRepository_PutUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArtifactRepository(db)

	first, err := repo.Put("s", artifact.TypeProjectIdea, "idea v1", nil)
	require.NoError(t, err)

	second, err := repo.Put("s", artifact.TypeProjectIdea, "idea v2", map[string]any{"model_id": "m"})
	require.NoError(t, err)

	// 同 (session, type) 只保留一条，重新生成覆盖内容
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "idea v2", second.Content)
	assert.Equal(t, "m", second.Metadata["model_id"])

	all, err := repo.List("s")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestArtifactRepository_InvalidType(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArtifactRepository(db)

	_, err := repo.Put("s", "haiku", "content", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestArtifactRepository_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewArtifactRepository(db)

	_, err := repo.Get("s", artifact.TypeTechStack)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRuleContextRepository_Scoping(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleContextRepository(db)

	_, err := repo.Insert("text", "session rule", "", "s1")
	require.NoError(t, err)
	shared, err := repo.Insert("initial", "shared rule", "rules.txt", "")
	require.NoError(t, err)

	rows, err := repo.ListActive("s1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "session rule", rows[0].Content)

	// 无会话时只看到共享行
	sharedRows, err := repo.ListActive("")
	require.NoError(t, err)
	require.Len(t, sharedRows, 1)
	assert.Equal(t, shared.ID, sharedRows[0].ID)
}

func TestRuleContextRepository_Deactivate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRuleContextRepository(db)

	row, err := repo.Insert("text", "temporary", "", "s")
	require.NoError(t, err)
	require.NoError(t, repo.Deactivate(row.ID))

	rows, err := repo.ListActive("s")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// 按来源停用
	_, err = repo.Insert("initial", "seed one", "rules.txt", "")
	require.NoError(t, err)
	require.NoError(t, repo.DeactivateBySource("", "initial"))
	rows, err = repo.ListActive("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSettingRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingRepository(db)

	_, err := repo.Get("current_model")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	require.NoError(t, repo.Put("current_model", "gpt-oss:20b"))
	require.NoError(t, repo.Put("current_model", "gpt-oss:120b"))

	v, err := repo.Get("current_model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-oss:120b", v)
}
