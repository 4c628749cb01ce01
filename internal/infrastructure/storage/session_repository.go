package storage

import (
	"database/sql"
	"fmt"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/chat"
)

// sessionRepository 会话 SQLite 仓储实现
type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository 创建会话仓储实例
func NewSessionRepository(db *sql.DB) chat.SessionRepository {
	return &sessionRepository{db: db}
}

// Upsert 创建会话，已存在时返回现有会话
func (r *sessionRepository) Upsert(sessionID, title string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.KindValidation, "session_id must not be empty")
	}

	var titleVal sql.NullString
	if title != "" {
		titleVal = sql.NullString{String: title, Valid: true}
	}

	now := nowUTC()
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO chat_sessions(session_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)",
		sessionID, titleVal, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}

	return r.Get(sessionID)
}

// Get 按 session_id 查找会话
func (r *sessionRepository) Get(sessionID string) (*chat.Session, error) {
	row := r.db.QueryRow(
		"SELECT id, session_id, title, created_at, updated_at FROM chat_sessions WHERE session_id = ?",
		sessionID,
	)
	return scanSession(row)
}

// Recent 按最后更新时间倒序列出会话
func (r *sessionRepository) Recent(limit, offset int) ([]*chat.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		"SELECT id, session_id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*chat.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateTitle 更新会话标题
func (r *sessionRepository) UpdateTitle(sessionID, title string) error {
	res, err := r.db.Exec(
		"UPDATE chat_sessions SET title = ?, updated_at = ? WHERE session_id = ?",
		title, nowUTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "session %s not found", sessionID)
	}
	return nil
}

// Touch 刷新会话的 updated_at
func (r *sessionRepository) Touch(sessionID string) error {
	_, err := r.db.Exec(
		"UPDATE chat_sessions SET updated_at = ? WHERE session_id = ?",
		nowUTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete 删除会话，外键级联删除关联行
func (r *sessionRepository) Delete(sessionID string) error {
	res, err := r.db.Exec("DELETE FROM chat_sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "session %s not found", sessionID)
	}
	return nil
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*chat.Session, error) {
	var s chat.Session
	var title sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.SessionID, &title, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "session not found")
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if title.Valid {
		s.Title = title.String
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// 编译时检查接口实现
var _ chat.SessionRepository = (*sessionRepository)(nil)
