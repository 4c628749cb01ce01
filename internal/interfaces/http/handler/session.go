package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	chatApp "github.com/hackhero/backend/internal/application/chat"
	ragApp "github.com/hackhero/backend/internal/application/rag"
	domainChat "github.com/hackhero/backend/internal/domain/chat"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// SessionHandler 会话管理处理器
type SessionHandler struct {
	sessions domainChat.SessionRepository
	messages domainChat.MessageRepository
	index    *ragApp.Index
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions domainChat.SessionRepository, messages domainChat.MessageRepository, index *ragApp.Index) *SessionHandler {
	return &SessionHandler{sessions: sessions, messages: messages, index: index}
}

// SessionDTO 会话 DTO
type SessionDTO struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// MessageDTO 消息 DTO
type MessageDTO struct {
	ID        int64                       `json:"id"`
	Role      string                      `json:"role"`
	Content   string                      `json:"content"`
	Metadata  *domainChat.MessageMetadata `json:"metadata,omitempty"`
	CreatedAt string                      `json:"created_at"`
}

const sessionTimeLayout = "2006-01-02T15:04:05Z"

func toSessionDTO(s *domainChat.Session) *SessionDTO {
	return &SessionDTO{
		SessionID: s.SessionID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.UTC().Format(sessionTimeLayout),
		UpdatedAt: s.UpdatedAt.UTC().Format(sessionTimeLayout),
	}
}

// List 最近会话列表
// @Summary 最近会话列表
// @Tags 会话
// @Produce json
// @Param limit query int false "条数上限"
// @Param offset query int false "偏移"
// @Success 200 {object} response.Response
// @Router /chat-sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.sessions.Recent(limit, offset)
	if err != nil {
		response.FromError(c, 400001, err)
		return
	}

	dtos := make([]*SessionDTO, 0, len(sessions))
	for _, s := range sessions {
		dtos = append(dtos, toSessionDTO(s))
	}
	response.Success(c, gin.H{
		"sessions": dtos,
		"limit":    limit,
		"offset":   offset,
	})
}

// Detail 会话详情与消息
// @Summary 会话详情
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Param limit query int false "消息条数上限"
// @Param offset query int false "消息偏移"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat-sessions/{id} [get]
func (h *SessionHandler) Detail(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.sessions.Get(sessionID)
	if err != nil {
		response.FromError(c, 400002, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.messages.List(sessionID, limit, offset)
	if err != nil {
		response.FromError(c, 400002, err)
		return
	}

	total, err := h.messages.Count(sessionID)
	if err != nil {
		response.FromError(c, 400002, err)
		return
	}

	dtos := make([]*MessageDTO, 0, len(messages))
	for _, m := range messages {
		dtos = append(dtos, &MessageDTO{
			ID:        m.ID,
			Role:      m.Role,
			Content:   chatApp.StripContextBlocks(m.Content),
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt.UTC().Format(sessionTimeLayout),
		})
	}

	response.Success(c, gin.H{
		"session":        toSessionDTO(session),
		"messages":       dtos,
		"total_messages": total,
	})
}

// UpdateTitle 更新会话标题
// @Summary 更新会话标题
// @Tags 会话
// @Accept mpfd
// @Produce json
// @Param id path string true "会话 ID"
// @Param title formData string true "标题"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat-sessions/{id}/title [put]
func (h *SessionHandler) UpdateTitle(c *gin.Context) {
	sessionID := c.Param("id")
	title := c.PostForm("title")
	if title == "" {
		response.Error(c, http.StatusBadRequest, 100001, "title is required")
		return
	}

	if err := h.sessions.UpdateTitle(sessionID, title); err != nil {
		response.FromError(c, 400003, err)
		return
	}
	response.Success(c, nil)
}

// Delete 删除会话
// @Summary 删除会话（级联删除消息、待办、产物、上下文）
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat-sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.sessions.Delete(sessionID); err != nil {
		response.FromError(c, 400004, err)
		return
	}

	// 丢弃内存索引，防止跨会话残留
	h.index.Drop(sessionID)
	response.Success(c, nil)
}
