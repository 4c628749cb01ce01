package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hackhero/backend/internal/domain/todo"
	"github.com/hackhero/backend/internal/infrastructure/websocket"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// TodoHandler 待办事项处理器
type TodoHandler struct {
	repo todo.Repository
	hub  *websocket.Hub
}

// NewTodoHandler 创建待办事项处理器
func NewTodoHandler(repo todo.Repository, hub *websocket.Hub) *TodoHandler {
	return &TodoHandler{repo: repo, hub: hub}
}

// TodoDTO 待办事项 DTO
type TodoDTO struct {
	ID          int64   `json:"id"`
	SessionID   string  `json:"session_id,omitempty"`
	Item        string  `json:"item"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// UpdateTodoRequest 更新待办请求
type UpdateTodoRequest struct {
	Item      *string `json:"item"`
	Status    *string `json:"status"`
	Priority  *int    `json:"priority"`
	SortOrder *int    `json:"sort_order"`
}

const todoTimeLayout = "2006-01-02T15:04:05Z"

// toTodoDTO 领域模型转 DTO
func toTodoDTO(item *todo.Item) *TodoDTO {
	dto := &TodoDTO{
		ID:        item.ID,
		SessionID: item.SessionID,
		Item:      item.Item,
		Status:    item.Status,
		Priority:  item.Priority,
		SortOrder: item.SortOrder,
		CreatedAt: item.CreatedAt.UTC().Format(todoTimeLayout),
		UpdatedAt: item.UpdatedAt.UTC().Format(todoTimeLayout),
	}
	if item.CompletedAt != nil {
		v := item.CompletedAt.UTC().Format(todoTimeLayout)
		dto.CompletedAt = &v
	}
	return dto
}

// List 获取待办列表
// @Summary 获取待办列表
// @Tags 待办
// @Produce json
// @Param session_id query string false "会话 ID"
// @Param detailed query bool false "返回完整字段"
// @Success 200 {object} response.Response
// @Router /todos [get]
func (h *TodoHandler) List(c *gin.Context) {
	sessionID := c.Query("session_id")
	detailed := c.Query("detailed") == "true"

	items, err := h.repo.List(sessionID)
	if err != nil {
		response.FromError(c, 800001, err)
		return
	}

	if detailed {
		dtos := make([]*TodoDTO, 0, len(items))
		for _, item := range items {
			dtos = append(dtos, toTodoDTO(item))
		}
		response.Success(c, gin.H{"todos": dtos})
		return
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Item)
	}
	response.Success(c, gin.H{"todos": out})
}

// Create 创建待办
// @Summary 创建待办
// @Tags 待办
// @Accept mpfd
// @Produce json
// @Param item formData string true "待办内容"
// @Param session_id formData string false "会话 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /todos [post]
func (h *TodoHandler) Create(c *gin.Context) {
	item := c.PostForm("item")
	sessionID := c.PostForm("session_id")

	created, err := h.repo.Add(item, sessionID)
	if err != nil {
		response.FromError(c, 800002, err)
		return
	}

	h.hub.PublishTodosChanged(sessionID)
	response.Success(c, toTodoDTO(created))
}

// Update 更新待办
// @Summary 更新待办
// @Tags 待办
// @Accept json
// @Produce json
// @Param id path int true "待办 ID"
// @Param body body UpdateTodoRequest true "更新字段"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /todos/{id} [put]
func (h *TodoHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 100001, "invalid request body")
		return
	}

	fields := todo.UpdateFields{
		Item:      req.Item,
		Status:    req.Status,
		Priority:  req.Priority,
		SortOrder: req.SortOrder,
	}
	if err := h.repo.Update(id, fields); err != nil {
		response.FromError(c, 800003, err)
		return
	}

	updated, err := h.repo.Get(id)
	if err != nil {
		response.FromError(c, 800003, err)
		return
	}

	h.hub.PublishTodosChanged(updated.SessionID)
	response.Success(c, toTodoDTO(updated))
}

// Delete 删除单条待办
// @Summary 删除待办
// @Tags 待办
// @Produce json
// @Param id path int true "待办 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /todos/{id} [delete]
func (h *TodoHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	item, err := h.repo.Get(id)
	if err != nil {
		response.FromError(c, 800004, err)
		return
	}

	if err := h.repo.Delete(id); err != nil {
		response.FromError(c, 800004, err)
		return
	}

	h.hub.PublishTodosChanged(item.SessionID)
	response.Success(c, nil)
}

// Clear 清空会话待办
// @Summary 清空会话待办
// @Tags 待办
// @Produce json
// @Param session_id query string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /todos [delete]
func (h *TodoHandler) Clear(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, 100001, "session_id is required")
		return
	}

	deleted, err := h.repo.ClearSession(sessionID)
	if err != nil {
		response.FromError(c, 800005, err)
		return
	}

	h.hub.PublishTodosChanged(sessionID)
	response.Success(c, gin.H{"deleted": deleted})
}

// parseIDParam 解析路径中的数字 ID
func parseIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, 100001, "invalid id")
		return 0, false
	}
	return id, true
}
