package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// ProviderHandler LLM 提供方处理器
type ProviderHandler struct {
	client *llm.Client
}

// NewProviderHandler 创建提供方处理器
func NewProviderHandler(client *llm.Client) *ProviderHandler {
	return &ProviderHandler{client: client}
}

// Status 提供方连通性与可用模型
// @Summary 提供方状态
// @Tags 提供方
// @Produce json
// @Success 200 {object} response.Response
// @Router /ollama/status [get]
func (h *ProviderHandler) Status(c *gin.Context) {
	response.Success(c, h.client.CheckStatus(c.Request.Context()))
}

// GetModel 当前模型
// @Summary 当前模型
// @Tags 提供方
// @Produce json
// @Success 200 {object} response.Response
// @Router /ollama/model [get]
func (h *ProviderHandler) GetModel(c *gin.Context) {
	response.Success(c, gin.H{"model": h.client.CurrentModel()})
}

// SetModel 切换模型
// @Summary 切换模型
// @Tags 提供方
// @Accept mpfd
// @Produce json
// @Param model formData string true "模型 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /ollama/model [post]
func (h *ProviderHandler) SetModel(c *gin.Context) {
	model := c.PostForm("model")
	if model == "" {
		response.Error(c, http.StatusBadRequest, 100001, "model is required")
		return
	}

	if err := h.client.SetModel(c.Request.Context(), model); err != nil {
		response.FromError(c, 700001, err)
		return
	}
	response.Success(c, gin.H{"model": h.client.CurrentModel()})
}
