package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/chat"
)

// messageRepository 消息 SQLite 仓储实现
type messageRepository struct {
	db       *sql.DB
	sessions chat.SessionRepository
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *sql.DB, sessions chat.SessionRepository) chat.MessageRepository {
	return &messageRepository{db: db, sessions: sessions}
}

// Append 追加消息，会话不存在时先创建
func (r *messageRepository) Append(sessionID, role, content string, metadata *chat.MessageMetadata) (*chat.Message, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.KindValidation, "session_id must not be empty")
	}
	if !chat.ValidRole(role) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid message role: %s", role)
	}

	if _, err := r.sessions.Upsert(sessionID, ""); err != nil {
		return nil, err
	}

	var metadataJSON sql.NullString
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := nowUTC()
	res, err := r.db.Exec(
		"INSERT INTO chat_messages(session_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, role, content, metadataJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get message id: %w", err)
	}

	// 有消息写入即视为会话活跃
	if err := r.sessions.Touch(sessionID); err != nil {
		return nil, err
	}

	return &chat.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: parseTime(now),
	}, nil
}

// List 按 created_at、id 顺序列出消息
func (r *messageRepository) List(sessionID string, limit, offset int) ([]*chat.Message, error) {
	query := "SELECT id, session_id, role, content, metadata, created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, id ASC"
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*chat.Message
	for rows.Next() {
		var m chat.Message
		var metadataJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			var meta chat.MessageMetadata
			if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err == nil {
				m.Metadata = &meta
			}
		}
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// Count 统计会话消息数
func (r *messageRepository) Count(sessionID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// 编译时检查接口实现
var _ chat.MessageRepository = (*messageRepository)(nil)
