package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/artifact"
	domainChat "github.com/hackhero/backend/internal/domain/chat"
	"github.com/hackhero/backend/internal/infrastructure/storage"
)

type fixedModels struct{}

func (fixedModels) CurrentModel() string { return "test-model" }

func setupExport(t *testing.T) (*Service, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.OpenDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(db, ""))
	t.Cleanup(func() { _ = db.Close() })

	sessions := storage.NewSessionRepository(db)
	messages := storage.NewMessageRepository(db, sessions)
	todos := storage.NewTodoRepository(db)
	artifacts := storage.NewArtifactRepository(db)
	rules := storage.NewRuleContextRepository(db)

	sessionID := "export-session"
	_, err = messages.Append(sessionID, domainChat.RoleUser, "hello", nil)
	require.NoError(t, err)
	_, err = messages.Append(sessionID, domainChat.RoleAssistant, "hi there", nil)
	require.NoError(t, err)
	_, err = todos.Add("design schema", sessionID)
	require.NoError(t, err)
	_, err = rules.Insert("text", "Teams may have up to 4 members.", "", sessionID)
	require.NoError(t, err)
	_, err = rules.Insert("text", "Deadline is March 15.", "", sessionID)
	require.NoError(t, err)
	_, err = artifacts.Put(sessionID, artifact.TypeProjectIdea, "An offline hackathon mentor.", nil)
	require.NoError(t, err)

	svc := NewService(sessions, messages, todos, artifacts, rules, fixedModels{})
	return svc, sessionID
}

func readZipEntries(t *testing.T, data []byte) ([]string, map[string][]byte) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	contents := map[string][]byte{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		contents[f.Name] = body
	}
	return names, contents
}

func TestSubmissionPack_EntryOrder(t *testing.T) {
	svc, sessionID := setupExport(t)

	data, filename, err := svc.SubmissionPack(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "submission_pack_export-s.zip", filename)

	names, contents := readZipEntries(t, data)
	assert.Equal(t, []string{
		"idea.md",
		"tech_stack.md",
		"summary.md",
		"todos.json",
		"rules_ingested.txt",
		"session_metadata.json",
	}, names)

	assert.Contains(t, string(contents["idea.md"]), "offline hackathon mentor")
	// 未生成的产物用占位文本
	assert.Contains(t, string(contents["tech_stack.md"]), "No tech stack generated yet")

	var todosOut []map[string]any
	require.NoError(t, json.Unmarshal(contents["todos.json"], &todosOut))
	require.Len(t, todosOut, 1)
	assert.Equal(t, "design schema", todosOut[0]["item"])
	assert.Equal(t, "pending", todosOut[0]["status"])

	// 规则行之间以两个空行分隔
	assert.Contains(t, string(contents["rules_ingested.txt"]), "4 members.\n\n\nDeadline")

	var meta map[string]any
	require.NoError(t, json.Unmarshal(contents["session_metadata.json"], &meta))
	assert.Equal(t, sessionID, meta["session_id"])
	assert.Equal(t, float64(2), meta["message_count"])
	assert.Equal(t, "test-model", meta["model_id"])
}

func TestSubmissionPack_Deterministic(t *testing.T) {
	svc, sessionID := setupExport(t)

	first, _, err := svc.SubmissionPack(sessionID)
	require.NoError(t, err)
	second, _, err := svc.SubmissionPack(sessionID)
	require.NoError(t, err)

	// 状态未变，两次导出必须逐字节一致
	assert.Equal(t, first, second)
}

func TestSubmissionPack_SessionRequired(t *testing.T) {
	svc, _ := setupExport(t)

	_, _, err := svc.SubmissionPack("")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, _, err = svc.SubmissionPack("missing-session")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
