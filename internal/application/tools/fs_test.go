package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackhero/backend/internal/domain/apperr"
)

func setupRepoRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("readme"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".secret"), []byte("hidden"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644))
	return root
}

func TestListDirectory_Root(t *testing.T) {
	root := setupRepoRoot(t)

	items, err := ListDirectory(root, "")
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, it := range items {
		names[it.Name] = true
	}
	assert.True(t, names["README.md"])
	assert.True(t, names["src"])
	// 点文件不出现在结果里
	assert.False(t, names[".secret"])
}

func TestListDirectory_Subdir(t *testing.T) {
	root := setupRepoRoot(t)

	items, err := ListDirectory(root, "src")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "main.go", items[0].Name)
	assert.False(t, items[0].IsDir)
	require.NotNil(t, items[0].Size)
}

func TestListDirectory_EscapeRejected(t *testing.T) {
	root := setupRepoRoot(t)

	_, err := ListDirectory(root, "../")
	require.Error(t, err)
	// 逃逸解析失败表现为 not_found 或 unauthorized_path，绝不返回内容
	kind := apperr.KindOf(err)
	assert.Contains(t, []apperr.Kind{apperr.KindUnauthorizedPath, apperr.KindNotFound}, kind)

	_, err = ListDirectory(root, "../../etc")
	require.Error(t, err)
}

func TestListDirectory_SymlinkEscapeRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test requires POSIX semantics")
	}

	root := setupRepoRoot(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "leak.txt"), []byte("leak"), 0644))

	// 指向 repo root 之外的符号链接在解析后必须被拒绝
	link := filepath.Join(root, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ListDirectory(root, "sneaky")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorizedPath))
}

func TestListDirectory_NotConfigured(t *testing.T) {
	_, err := ListDirectory("", ".")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
