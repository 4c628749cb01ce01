package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hackhero/backend/internal/infrastructure/log"
)

//go:embed all:migrations
var embeddedMigrations embed.FS

// migration 单个迁移文件
type migration struct {
	Version string
	SQL     string
}

// RunMigrations 按字典序应用未执行的迁移
// overrideDir 存在时使用该目录下的 *.sql，否则使用内嵌迁移
// 迁移失败是启动期致命错误（退出码 3）
func RunMigrations(db *sql.DB, overrideDir string) error {
	logger := log.NewModuleLogger("storage", "migrate")

	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	migrations, err := loadMigrations(overrideDir)
	if err != nil {
		return err
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO schema_migrations(version, applied_at) VALUES (?, ?)",
			m.Version, nowUTC(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		logger.Info("Applied migration", "version", m.Version)
	}

	return nil
}

// ensureMigrationsTable 创建迁移记录表
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// appliedVersions 查询已应用的迁移版本
func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// loadMigrations 加载迁移文件，按文件名字典序
func loadMigrations(overrideDir string) ([]migration, error) {
	if overrideDir != "" {
		if info, err := os.Stat(overrideDir); err == nil && info.IsDir() {
			return loadMigrationsFromDir(overrideDir)
		}
	}
	return loadMigrationsFromFS()
}

func loadMigrationsFromDir(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{
			Version: strings.TrimSuffix(e.Name(), ".sql"),
			SQL:     string(data),
		})
	}
	sortMigrations(migrations)
	return migrations, nil
}

func loadMigrationsFromFS() ([]migration, error) {
	var migrations []migration
	err := fs.WalkDir(embeddedMigrations, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		data, err := embeddedMigrations.ReadFile(path)
		if err != nil {
			return err
		}
		migrations = append(migrations, migration{
			Version: strings.TrimSuffix(filepath.Base(path), ".sql"),
			SQL:     string(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	sortMigrations(migrations)
	return migrations, nil
}

func sortMigrations(migrations []migration) {
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
}
