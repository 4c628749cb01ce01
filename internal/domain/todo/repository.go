package todo

// UpdateFields 待办更新字段，nil 表示不修改
type UpdateFields struct {
	Item      *string
	Status    *string
	Priority  *int
	SortOrder *int
}

// Repository 待办事项仓储接口
type Repository interface {
	// Add 追加待办，sessionID 为空时创建全局待办
	Add(item, sessionID string) (*Item, error)

	// List 列出待办，sessionID 为空时仅返回全局待办
	List(sessionID string) ([]*Item, error)

	// Get 按 ID 查找待办，缺失时返回 not_found
	Get(id int64) (*Item, error)

	// Update 按字段更新待办，status=done 时设置 completed_at
	Update(id int64, fields UpdateFields) error

	// Delete 删除单条待办
	Delete(id int64) error

	// ClearSession 清空指定会话的待办，返回删除条数
	// 只允许按会话清空，不提供全局清空
	ClearSession(sessionID string) (int64, error)
}
