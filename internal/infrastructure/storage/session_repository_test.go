package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/chat"
)

func TestSessionRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)

	s, err := repo.Upsert("session-1", "")
	require.NoError(t, err)
	assert.Equal(t, "session-1", s.SessionID)
	assert.False(t, s.HasTitle())

	// 幂等：重复 upsert 返回同一会话
	again, err := repo.Upsert("session-1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
	assert.False(t, again.HasTitle())
}

func TestSessionRepository_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)

	_, err := repo.Get("missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSessionRepository_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db)
	messages := NewMessageRepository(db, sessions)
	todos := NewTodoRepository(db)
	rules := NewRuleContextRepository(db)
	artifacts := NewArtifactRepository(db)

	_, err := messages.Append("session-1", chat.RoleUser, "hello", nil)
	require.NoError(t, err)
	_, err = todos.Add("task", "session-1")
	require.NoError(t, err)
	_, err = rules.Insert("text", "rule content", "", "session-1")
	require.NoError(t, err)
	_, err = artifacts.Put("session-1", "project_idea", "an idea", nil)
	require.NoError(t, err)

	require.NoError(t, sessions.Delete("session-1"))

	msgs, err := messages.List("session-1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	items, err := todos.List("session-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	rows, err := rules.ListActive("session-1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	arts, err := artifacts.List("session-1")
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestMessageRepository_AppendCreatesSession(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db)
	messages := NewMessageRepository(db, sessions)

	m, err := messages.Append("fresh-session", chat.RoleUser, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh-session", m.SessionID)

	_, err = sessions.Get("fresh-session")
	require.NoError(t, err)
}

func TestMessageRepository_OrderAndMetadata(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db)
	messages := NewMessageRepository(db, sessions)

	_, err := messages.Append("s", chat.RoleUser, "first", nil)
	require.NoError(t, err)
	_, err = messages.Append("s", chat.RoleAssistant, "second", &chat.MessageMetadata{
		Thinking: "pondering",
		ToolCalls: []chat.ToolCallRecord{
			{ID: "call-1", Name: "add_todo", Arguments: `{"item":"x"}`},
		},
	})
	require.NoError(t, err)

	msgs, err := messages.List("s", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	require.NotNil(t, msgs[1].Metadata)
	assert.Equal(t, "pondering", msgs[1].Metadata.Thinking)
	require.Len(t, msgs[1].Metadata.ToolCalls, 1)
	assert.Equal(t, "add_todo", msgs[1].Metadata.ToolCalls[0].Name)
}

func TestMessageRepository_InvalidRole(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db)
	messages := NewMessageRepository(db, sessions)

	_, err := messages.Append("s", "oracle", "nope", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestMessageRepository_SessionScoping(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db)
	messages := NewMessageRepository(db, sessions)

	_, err := messages.Append("a", chat.RoleUser, "for a", nil)
	require.NoError(t, err)
	_, err = messages.Append("b", chat.RoleUser, "for b", nil)
	require.NoError(t, err)

	msgsA, err := messages.List("a", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgsA, 1)
	assert.Equal(t, "for a", msgsA[0].Content)
}
