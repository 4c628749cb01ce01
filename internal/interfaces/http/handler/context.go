package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackhero/backend/internal/application/ingest"
	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/domain/rulectx"
	"github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// ContextHandler 规则上下文处理器
type ContextHandler struct {
	ingest *ingest.Service
	index  domainRAG.Retriever
	logger *slog.Logger
}

// NewContextHandler 创建上下文处理器
func NewContextHandler(ingestSvc *ingest.Service, index domainRAG.Retriever) *ContextHandler {
	return &ContextHandler{
		ingest: ingestSvc,
		index:  index,
		logger: log.NewModuleLogger("http", "context"),
	}
}

// UploadRules 上传规则文件
// @Summary 上传规则文件作为上下文
// @Tags 上下文
// @Accept mpfd
// @Produce json
// @Param file formData file true "规则文件"
// @Param session_id formData string false "会话 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 413 {object} response.ErrorResponse
// @Failure 415 {object} response.ErrorResponse
// @Router /context/rules [post]
func (h *ContextHandler) UploadRules(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, 100001, "file is required")
		return
	}
	sessionID := c.PostForm("session_id")

	f, err := fh.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, 100002, "failed to open upload")
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, 100002, "failed to read upload")
		return
	}

	row, err := h.ingest.AddFile(c.Request.Context(), fh.Filename, data, sessionID)
	if err != nil {
		response.FromError(c, 300001, err)
		return
	}

	response.Success(c, gin.H{"row_id": row.ID, "filename": row.Filename})
}

// AddText 添加粘贴文本或 URL
// @Summary 添加文本/URL 上下文
// @Tags 上下文
// @Accept mpfd
// @Produce json
// @Param text formData string true "文本或 URL"
// @Param session_id formData string false "会话 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 415 {object} response.ErrorResponse
// @Router /context/add-text [post]
func (h *ContextHandler) AddText(c *gin.Context) {
	text := c.PostForm("text")
	sessionID := c.PostForm("session_id")

	row, err := h.ingest.AddText(c.Request.Context(), text, sessionID)
	if err != nil {
		response.FromError(c, 300002, err)
		return
	}

	response.Success(c, gin.H{"row_id": row.ID, "source": row.Source})
}

// Status 检索索引状态
// @Summary 检索索引状态
// @Tags 上下文
// @Produce json
// @Param session_id query string false "会话 ID"
// @Success 200 {object} response.Response
// @Router /context/status [get]
func (h *ContextHandler) Status(c *gin.Context) {
	sessionID := c.Query("session_id")

	status := h.index.Status(sessionID)
	if !status.Ready && !status.Building {
		// 无索引也无在建构建：触发一次重建，便于轮询方等到 ready
		rows, err := h.ingest.ListActive(sessionID)
		if err == nil && len(rows) > 0 {
			h.index.Invalidate(sessionID)
			status = h.index.Status(sessionID)
		}
	}

	response.Success(c, status)
}

// List 活动上下文行
// @Summary 活动上下文行
// @Tags 上下文
// @Produce json
// @Param session_id query string false "会话 ID"
// @Success 200 {object} response.Response
// @Router /context/list [get]
func (h *ContextHandler) List(c *gin.Context) {
	sessionID := c.Query("session_id")

	rows, err := h.ingest.ListActive(sessionID)
	if err != nil {
		response.FromError(c, 300003, err)
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		items = append(items, ruleRowDTO(r))
	}
	response.Success(c, gin.H{"items": items})
}

// Deactivate 停用一条上下文行
// @Summary 停用上下文行
// @Tags 上下文
// @Produce json
// @Param id path int true "上下文行 ID"
// @Param session_id query string false "会话 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /context/{id} [delete]
func (h *ContextHandler) Deactivate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	sessionID := c.Query("session_id")

	if err := h.ingest.Deactivate(id, sessionID); err != nil {
		response.FromError(c, 300004, err)
		return
	}
	response.Success(c, nil)
}

// ruleRowDTO 上下文行 DTO
func ruleRowDTO(r *rulectx.Row) gin.H {
	return gin.H{
		"id":         r.ID,
		"session_id": r.SessionID,
		"source":     r.Source,
		"filename":   r.Filename,
		"content":    r.Content,
		"active":     r.Active,
		"created_at": r.CreatedAt,
	}
}
