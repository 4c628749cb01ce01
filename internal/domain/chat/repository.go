package chat

// SessionRepository 会话仓储接口
type SessionRepository interface {
	// Upsert 创建会话，已存在时返回现有会话（幂等）
	Upsert(sessionID, title string) (*Session, error)

	// Get 按 session_id 查找会话，缺失时返回 not_found
	Get(sessionID string) (*Session, error)

	// Recent 按最后更新时间倒序列出会话
	Recent(limit, offset int) ([]*Session, error)

	// UpdateTitle 更新会话标题
	UpdateTitle(sessionID, title string) error

	// Touch 刷新会话的 updated_at
	Touch(sessionID string) error

	// Delete 删除会话，级联删除消息、待办、产物与规则上下文
	Delete(sessionID string) error
}

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Append 追加消息，会话不存在时先创建
	Append(sessionID, role, content string, metadata *MessageMetadata) (*Message, error)

	// List 按 created_at、id 顺序列出消息，limit<=0 表示不限制
	List(sessionID string, limit, offset int) ([]*Message, error)

	// Count 统计会话消息数
	Count(sessionID string) (int, error)
}
