package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/todo"
)

func TestTodoRepository_AddAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTodoRepository(db)

	first, err := repo.Add("design schema", "session-1")
	require.NoError(t, err)
	assert.Equal(t, todo.StatusPending, first.Status)
	assert.Equal(t, todo.PriorityDefault, first.Priority)

	second, err := repo.Add("write tests", "session-1")
	require.NoError(t, err)
	assert.Greater(t, second.SortOrder, first.SortOrder)

	items, err := repo.List("session-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "design schema", items[0].Item)
	assert.Equal(t, "write tests", items[1].Item)
}

func TestTodoRepository_SessionScoping(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTodoRepository(db)

	_, err := repo.Add("scoped", "session-a")
	require.NoError(t, err)
	_, err = repo.Add("global", "")
	require.NoError(t, err)

	itemsA, err := repo.List("session-a")
	require.NoError(t, err)
	require.Len(t, itemsA, 1)
	assert.Equal(t, "scoped", itemsA[0].Item)

	itemsB, err := repo.List("session-b")
	require.NoError(t, err)
	assert.Empty(t, itemsB)

	global, err := repo.List("")
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "global", global[0].Item)
}

func TestTodoRepository_StatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTodoRepository(db)

	item, err := repo.Add("finish it", "s")
	require.NoError(t, err)

	done := todo.StatusDone
	require.NoError(t, repo.Update(item.ID, todo.UpdateFields{Status: &done}))

	got, err := repo.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, todo.StatusDone, got.Status)
	require.NotNil(t, got.CompletedAt)

	pending := todo.StatusPending
	require.NoError(t, repo.Update(item.ID, todo.UpdateFields{Status: &pending}))

	got, err = repo.Get(item.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)
}

func TestTodoRepository_UpdateValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTodoRepository(db)

	item, err := repo.Add("task", "s")
	require.NoError(t, err)

	bad := "sideways"
	err = repo.Update(item.ID, todo.UpdateFields{Status: &bad})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	outOfRange := 9
	err = repo.Update(item.ID, todo.UpdateFields{Priority: &outOfRange})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = repo.Update(99999, todo.UpdateFields{Status: &bad})
	require.Error(t, err)
}

func TestTodoRepository_ClearSession(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTodoRepository(db)

	_, err := repo.Add("one", "s1")
	require.NoError(t, err)
	_, err = repo.Add("two", "s1")
	require.NoError(t, err)
	_, err = repo.Add("other", "s2")
	require.NoError(t, err)

	deleted, err := repo.ClearSession("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// 清空必须按会话进行
	_, err = repo.ClearSession("")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	others, err := repo.List("s2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
