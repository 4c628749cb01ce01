package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	exportApp "github.com/hackhero/backend/internal/application/export"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// ExportHandler 提交包导出处理器
type ExportHandler struct {
	service *exportApp.Service
}

// NewExportHandler 创建导出处理器
func NewExportHandler(service *exportApp.Service) *ExportHandler {
	return &ExportHandler{service: service}
}

// SubmissionPack 导出提交包
// @Summary 导出提交包 ZIP
// @Tags 导出
// @Produce application/zip
// @Param session_id query string true "会话 ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /export/submission-pack [post]
func (h *ExportHandler) SubmissionPack(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, 100001, "session_id is required")
		return
	}

	data, filename, err := h.service.SubmissionPack(sessionID)
	if err != nil {
		response.FromError(c, 600001, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/zip", data)
}
