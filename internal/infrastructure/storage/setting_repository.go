package storage

import (
	"database/sql"
	"fmt"

	"github.com/hackhero/backend/internal/domain/apperr"
)

// SettingRepository 应用设置仓储接口
type SettingRepository interface {
	// Get 读取设置，缺失时返回 not_found
	Get(key string) (string, error)

	// Put 写入或覆盖设置
	Put(key, value string) error
}

// settingRepository 应用设置 SQLite 仓储实现
type settingRepository struct {
	db *sql.DB
}

// NewSettingRepository 创建设置仓储实例
func NewSettingRepository(db *sql.DB) SettingRepository {
	return &settingRepository{db: db}
}

// Get 读取设置
func (r *settingRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", apperr.Newf(apperr.KindNotFound, "setting %s not found", key)
		}
		return "", fmt.Errorf("failed to query setting: %w", err)
	}
	return value, nil
}

// Put 写入或覆盖设置
func (r *settingRepository) Put(key, value string) error {
	if key == "" {
		return apperr.New(apperr.KindValidation, "setting key must not be empty")
	}
	_, err := r.db.Exec(
		"INSERT INTO app_settings(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}

// 编译时检查接口实现
var _ SettingRepository = (*settingRepository)(nil)
