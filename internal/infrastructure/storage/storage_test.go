package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB 创建临时测试数据库并应用迁移
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDB(dbPath)
	require.NoError(t, err)

	require.NoError(t, RunMigrations(db, ""))

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	// 再次执行不应报错、不应重复应用
	require.NoError(t, RunMigrations(db, ""))

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}
