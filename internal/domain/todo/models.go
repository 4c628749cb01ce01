package todo

import "time"

// 待办状态常量
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// 优先级取值范围
const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 3
)

// Item 待办事项实体
type Item struct {
	ID          int64
	SessionID   string // 为空表示全局待办
	Item        string
	Status      string
	Priority    int
	SortOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time // status=done 时设置
}

// SetStatus 切换状态并维护 completed_at
func (t *Item) SetStatus(status string) {
	t.Status = status
	if status == StatusDone {
		now := time.Now().UTC()
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
}

// ValidStatus 校验待办状态
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ValidPriority 校验优先级
func ValidPriority(p int) bool {
	return p >= PriorityMin && p <= PriorityMax
}
