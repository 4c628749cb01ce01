package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/todo"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/storage"
)

func setupRegistry(t *testing.T) (*Registry, todo.Repository) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.OpenDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(db, ""))
	t.Cleanup(func() { _ = db.Close() })

	todos := storage.NewTodoRepository(db)

	cfg := config.NewConfig()
	cfg.Tools.RepoRoot = t.TempDir()

	// 产物与标题工具不在本测试范围内
	return NewRegistry(cfg, todos, nil, nil), todos
}

func TestRegistry_SchemasAreClosedSet(t *testing.T) {
	registry, _ := setupRegistry(t)

	schemas := registry.Schemas()
	require.Len(t, schemas, 9)

	names := make(map[string]bool)
	for _, s := range schemas {
		assert.Equal(t, "function", s.Type)
		names[s.Function.Name] = true
	}
	for _, expected := range []string{
		"get_session_id", "list_todos", "add_todo", "clear_todos",
		"list_directory", "derive_project_idea", "create_tech_stack",
		"summarize_chat_history", "generate_chat_title",
	} {
		assert.True(t, names[expected], "missing schema for %s", expected)
	}
}

func TestRegistry_GetSessionID(t *testing.T) {
	registry, _ := setupRegistry(t)

	res := registry.Execute(context.Background(), Call{Name: "get_session_id"}, "session-42")
	require.True(t, res.OK)
	assert.Equal(t, map[string]string{"session_id": "session-42"}, res.Result)
}

func TestRegistry_TodoLifecycle(t *testing.T) {
	registry, todos := setupRegistry(t)
	ctx := context.Background()

	res := registry.Execute(ctx, Call{Name: "add_todo", Arguments: `{"item":"design schema"}`}, "s1")
	require.True(t, res.OK, "error: %s", res.Error)

	// 注入的会话 ID 覆盖模型给出的值
	res = registry.Execute(ctx, Call{Name: "add_todo", Arguments: `{"item":"other","session_id":"spoofed"}`}, "s1")
	require.True(t, res.OK)

	items, err := todos.List("s1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	spoofed, err := todos.List("spoofed")
	require.NoError(t, err)
	assert.Empty(t, spoofed)

	res = registry.Execute(ctx, Call{Name: "list_todos"}, "s1")
	require.True(t, res.OK)
	assert.Equal(t, []string{"design schema", "other"}, res.Result)

	res = registry.Execute(ctx, Call{Name: "clear_todos"}, "s1")
	require.True(t, res.OK)

	items, err = todos.List("s1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRegistry_ErrorsNeverEscape(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	res := registry.Execute(ctx, Call{Name: "does_not_exist"}, "s")
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "unknown function")

	res = registry.Execute(ctx, Call{Name: "add_todo", Arguments: `{"item":""}`}, "s")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)

	res = registry.Execute(ctx, Call{Name: "add_todo", Arguments: `{broken json`}, "s")
	assert.False(t, res.OK)

	// 处理器 panic 也不能外泄
	res = registry.Execute(ctx, Call{Name: "generate_chat_title", Arguments: `{}`}, "s")
	assert.False(t, res.OK)
}

func TestRegistry_ListDirectoryConfined(t *testing.T) {
	registry, _ := setupRegistry(t)

	res := registry.Execute(context.Background(), Call{Name: "list_directory", Arguments: `{"path":"../../"}`}, "s")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}
