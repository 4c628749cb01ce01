package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/todo"
)

// todoRepository 待办事项 SQLite 仓储实现
type todoRepository struct {
	db *sql.DB
}

// NewTodoRepository 创建待办事项仓储实例
func NewTodoRepository(db *sql.DB) todo.Repository {
	return &todoRepository{db: db}
}

// Add 追加待办，排序号接在当前会话末尾
func (r *todoRepository) Add(item, sessionID string) (*todo.Item, error) {
	if strings.TrimSpace(item) == "" {
		return nil, apperr.New(apperr.KindValidation, "todo item must not be empty")
	}

	var sessionVal sql.NullString
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

	var maxOrder sql.NullInt64
	err := r.db.QueryRow(
		"SELECT MAX(sort_order) FROM todos WHERE session_id IS ?", sessionVal,
	).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to query todo sort order: %w", err)
	}

	now := nowUTC()
	sortOrder := int(maxOrder.Int64) + 1
	res, err := r.db.Exec(
		`INSERT INTO todos(session_id, item, status, priority, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionVal, item, todo.StatusPending, todo.PriorityDefault, sortOrder, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add todo: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get todo id: %w", err)
	}

	return &todo.Item{
		ID:        id,
		SessionID: sessionID,
		Item:      item,
		Status:    todo.StatusPending,
		Priority:  todo.PriorityDefault,
		SortOrder: sortOrder,
		CreatedAt: parseTime(now),
		UpdatedAt: parseTime(now),
	}, nil
}

// List 列出待办；sessionID 为空时仅返回全局待办
func (r *todoRepository) List(sessionID string) ([]*todo.Item, error) {
	var sessionVal sql.NullString
	if sessionID != "" {
		sessionVal = sql.NullString{String: sessionID, Valid: true}
	}

	rows, err := r.db.Query(
		`SELECT id, session_id, item, status, priority, sort_order, created_at, updated_at, completed_at
		 FROM todos WHERE session_id IS ? ORDER BY sort_order ASC, id ASC`,
		sessionVal,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer rows.Close()

	var items []*todo.Item
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get 按 ID 查找待办
func (r *todoRepository) Get(id int64) (*todo.Item, error) {
	row := r.db.QueryRow(
		`SELECT id, session_id, item, status, priority, sort_order, created_at, updated_at, completed_at
		 FROM todos WHERE id = ?`, id,
	)
	item, err := scanTodo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Newf(apperr.KindNotFound, "todo %d not found", id)
		}
		return nil, err
	}
	return item, nil
}

// Update 按字段更新待办
func (r *todoRepository) Update(id int64, fields todo.UpdateFields) error {
	var sets []string
	var args []any

	if fields.Item != nil {
		if strings.TrimSpace(*fields.Item) == "" {
			return apperr.New(apperr.KindValidation, "todo item must not be empty")
		}
		sets = append(sets, "item = ?")
		args = append(args, *fields.Item)
	}
	if fields.Status != nil {
		if !todo.ValidStatus(*fields.Status) {
			return apperr.Newf(apperr.KindValidation, "invalid todo status: %s", *fields.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, *fields.Status)
		if *fields.Status == todo.StatusDone {
			sets = append(sets, "completed_at = ?")
			args = append(args, nowUTC())
		} else {
			sets = append(sets, "completed_at = NULL")
		}
	}
	if fields.Priority != nil {
		if !todo.ValidPriority(*fields.Priority) {
			return apperr.Newf(apperr.KindValidation, "invalid todo priority: %d", *fields.Priority)
		}
		sets = append(sets, "priority = ?")
		args = append(args, *fields.Priority)
	}
	if fields.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *fields.SortOrder)
	}

	if len(sets) == 0 {
		return apperr.New(apperr.KindValidation, "no fields provided")
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, nowUTC(), id)

	res, err := r.db.Exec("UPDATE todos SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "todo %d not found", id)
	}
	return nil
}

// Delete 删除单条待办
func (r *todoRepository) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "todo %d not found", id)
	}
	return nil
}

// ClearSession 清空指定会话的待办
func (r *todoRepository) ClearSession(sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, apperr.New(apperr.KindValidation, "session_id is required to clear todos")
	}

	res, err := r.db.Exec("DELETE FROM todos WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear todos: %w", err)
	}
	return res.RowsAffected()
}

func scanTodo(row rowScanner) (*todo.Item, error) {
	var item todo.Item
	var sessionID sql.NullString
	var createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(
		&item.ID,
		&sessionID,
		&item.Item,
		&item.Status,
		&item.Priority,
		&item.SortOrder,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if sessionID.Valid {
		item.SessionID = sessionID.String
	}
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		item.CompletedAt = &t
	}
	return &item, nil
}

// 编译时检查接口实现
var _ todo.Repository = (*todoRepository)(nil)
