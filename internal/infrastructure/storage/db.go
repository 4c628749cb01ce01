package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// 时间以 UTC ISO-8601 文本存储
const timeLayout = "2006-01-02T15:04:05Z"

// OpenDB 打开数据库连接
// PRAGMA 走 DSN 参数，连接池里的每条连接都会生效；
// WAL 下单写者 + 多读者跨连接并发，写冲突由 busy_timeout 等待化解
func OpenDB(dbPath string) (*sql.DB, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// nowUTC 当前 UTC 时间的存储文本
func nowUTC() string {
	return time.Now().UTC().Format(timeLayout)
}

// formatTime 时间转存储文本
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime 存储文本转时间，容忍 sqlite 的 datetime('now') 格式
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
