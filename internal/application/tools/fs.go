package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
)

// DirEntry 目录项
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  *int64 `json:"size"` // 目录为 null
}

// ListDirectory 列出仓库根目录内的目录项
// 解析符号链接后必须仍落在 repoRoot 内，越界返回 unauthorized_path；
// 隐藏点文件
func ListDirectory(repoRoot, path string) ([]DirEntry, error) {
	if repoRoot == "" {
		return nil, apperr.New(apperr.KindValidation, "repo root is not configured")
	}

	root, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "repo root does not resolve", err)
	}

	normalized := strings.TrimSpace(strings.ReplaceAll(path, "\\", "/"))
	if normalized == "" {
		normalized = "."
	}

	candidate := filepath.Join(root, filepath.FromSlash(normalized))
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "directory not found")
	}

	if !pathWithin(root, resolved) {
		return nil, apperr.New(apperr.KindUnauthorizedPath, "path outside repo root is not allowed")
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return nil, apperr.New(apperr.KindNotFound, "directory not found")
	}

	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read directory", err)
	}

	items := make([]DirEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		entry := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if !e.IsDir() {
			if fi, err := e.Info(); err == nil {
				size := fi.Size()
				entry.Size = &size
			}
		}
		items = append(items, entry)
	}
	return items, nil
}

// pathWithin 判断 path 是否位于 root 之内（含 root 自身）
func pathWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
