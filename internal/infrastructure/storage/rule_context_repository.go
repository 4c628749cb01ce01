package storage

import (
	"database/sql"
	"fmt"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/rulectx"
)

// ruleContextRepository 规则上下文 SQLite 仓储实现
type ruleContextRepository struct {
	db *sql.DB
}

// NewRuleContextRepository 创建规则上下文仓储实例
func NewRuleContextRepository(db *sql.DB) rulectx.Repository {
	return &ruleContextRepository{db: db}
}

// Insert 写入一条活动的上下文行
func (r *ruleContextRepository) Insert(source, content, filename, sessionID string) (*rulectx.Row, error) {
	if !rulectx.ValidSource(source) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid rule context source: %s", source)
	}
	if content == "" {
		return nil, apperr.New(apperr.KindValidation, "rule context content must not be empty")
	}

	var sessionVal, filenameVal sql.NullString
	if sessionID != "" {
		// 会话可能尚未有消息，先确保存在
		now := nowUTC()
		if _, err := r.db.Exec(
			"INSERT OR IGNORE INTO chat_sessions(session_id, created_at, updated_at) VALUES (?, ?, ?)",
			sessionID, now, now,
		); err != nil {
			return nil, fmt.Errorf("failed to ensure session: %w", err)
		}
		sessionVal = sql.NullString{String: sessionID, Valid: true}
	}
	if filename != "" {
		filenameVal = sql.NullString{String: filename, Valid: true}
	}

	now := nowUTC()
	res, err := r.db.Exec(
		"INSERT INTO rule_context(session_id, source, filename, content, active, created_at) VALUES (?, ?, ?, ?, 1, ?)",
		sessionVal, source, filenameVal, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule context: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get rule context id: %w", err)
	}

	return &rulectx.Row{
		ID:        id,
		SessionID: sessionID,
		Source:    source,
		Filename:  filename,
		Content:   content,
		Active:    true,
		CreatedAt: parseTime(now),
	}, nil
}

// ListActive 按插入顺序列出活动行
func (r *ruleContextRepository) ListActive(sessionID string) ([]*rulectx.Row, error) {
	var sessionVal sql.NullString
	if sessionID != "" {
		sessionVal = sql.NullString{String: sessionID, Valid: true}
	}

	rows, err := r.db.Query(
		`SELECT id, session_id, source, filename, content, active, created_at
		 FROM rule_context WHERE session_id IS ? AND active = 1 ORDER BY id ASC`,
		sessionVal,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule context: %w", err)
	}
	defer rows.Close()

	var result []*rulectx.Row
	for rows.Next() {
		var row rulectx.Row
		var sessionCol, filenameCol sql.NullString
		var active int
		var createdAt string

		if err := rows.Scan(&row.ID, &sessionCol, &row.Source, &filenameCol, &row.Content, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule context row: %w", err)
		}

		if sessionCol.Valid {
			row.SessionID = sessionCol.String
		}
		if filenameCol.Valid {
			row.Filename = filenameCol.String
		}
		row.Active = active == 1
		row.CreatedAt = parseTime(createdAt)
		result = append(result, &row)
	}
	return result, rows.Err()
}

// Deactivate 停用一条上下文行
func (r *ruleContextRepository) Deactivate(id int64) error {
	res, err := r.db.Exec("UPDATE rule_context SET active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule context: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "rule context row %d not found", id)
	}
	return nil
}

// DeactivateBySource 停用某会话下指定来源的全部行
func (r *ruleContextRepository) DeactivateBySource(sessionID, source string) error {
	var sessionVal sql.NullString
	if sessionID != "" {
		sessionVal = sql.NullString{String: sessionID, Valid: true}
	}

	_, err := r.db.Exec(
		"UPDATE rule_context SET active = 0 WHERE session_id IS ? AND source = ?",
		sessionVal, source,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule context by source: %w", err)
	}
	return nil
}

// 编译时检查接口实现
var _ rulectx.Repository = (*ruleContextRepository)(nil)
