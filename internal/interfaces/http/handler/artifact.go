package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	artifactApp "github.com/hackhero/backend/internal/application/artifact"
	"github.com/hackhero/backend/internal/domain/artifact"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// ArtifactHandler 项目产物处理器
type ArtifactHandler struct {
	service *artifactApp.Service
	repo    artifact.Repository
}

// NewArtifactHandler 创建产物处理器
func NewArtifactHandler(service *artifactApp.Service, repo artifact.Repository) *ArtifactHandler {
	return &ArtifactHandler{service: service, repo: repo}
}

// ArtifactDTO 产物 DTO
type ArtifactDTO struct {
	ID           int64          `json:"id"`
	SessionID    string         `json:"session_id"`
	ArtifactType string         `json:"artifact_type"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

func toArtifactDTO(a *artifact.ProjectArtifact) *ArtifactDTO {
	layout := "2006-01-02T15:04:05Z"
	return &ArtifactDTO{
		ID:           a.ID,
		SessionID:    a.SessionID,
		ArtifactType: a.ArtifactType,
		Content:      a.Content,
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt.UTC().Format(layout),
		UpdatedAt:    a.UpdatedAt.UTC().Format(layout),
	}
}

// List 会话的全部产物
// @Summary 会话产物列表
// @Tags 产物
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} response.Response
// @Router /chat-sessions/{id}/project-artifacts [get]
func (h *ArtifactHandler) List(c *gin.Context) {
	sessionID := c.Param("id")

	artifacts, err := h.repo.List(sessionID)
	if err != nil {
		response.FromError(c, 500001, err)
		return
	}

	dtos := make([]*ArtifactDTO, 0, len(artifacts))
	for _, a := range artifacts {
		dtos = append(dtos, toArtifactDTO(a))
	}
	response.Success(c, gin.H{"artifacts": dtos})
}

// Get 指定类型的产物
// @Summary 获取产物
// @Tags 产物
// @Produce json
// @Param id path string true "会话 ID"
// @Param type path string true "产物类型"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat-sessions/{id}/project-artifacts/{type} [get]
func (h *ArtifactHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")
	artifactType := c.Param("type")

	a, err := h.repo.Get(sessionID, artifactType)
	if err != nil {
		response.FromError(c, 500002, err)
		return
	}
	response.Success(c, gin.H{"artifact": toArtifactDTO(a)})
}

// DeriveProjectIdea 生成项目点子
// @Summary 生成项目点子产物
// @Tags 产物
// @Produce json
// @Param id path string true "会话 ID"
// @Param stream query bool false "以 SSE 流式返回 token"
// @Success 200 {object} response.Response
// @Router /chat-sessions/{id}/derive-project-idea [post]
func (h *ArtifactHandler) DeriveProjectIdea(c *gin.Context) {
	h.derive(c, artifact.TypeProjectIdea)
}

// CreateTechStack 生成技术栈
// @Summary 生成技术栈产物
// @Tags 产物
// @Produce json
// @Param id path string true "会话 ID"
// @Param stream query bool false "以 SSE 流式返回 token"
// @Success 200 {object} response.Response
// @Router /chat-sessions/{id}/create-tech-stack [post]
func (h *ArtifactHandler) CreateTechStack(c *gin.Context) {
	h.derive(c, artifact.TypeTechStack)
}

// SummarizeChatHistory 生成提交总结
// @Summary 生成提交总结产物
// @Tags 产物
// @Produce json
// @Param id path string true "会话 ID"
// @Param stream query bool false "以 SSE 流式返回 token"
// @Success 200 {object} response.Response
// @Router /chat-sessions/{id}/summarize-chat-history [post]
func (h *ArtifactHandler) SummarizeChatHistory(c *gin.Context) {
	h.derive(c, artifact.TypeSubmissionSummary)
}

// derive 产物生成的公共路径；?stream=true 时以 SSE 流出 token
func (h *ArtifactHandler) derive(c *gin.Context, artifactType string) {
	sessionID := c.Param("id")

	if c.Query("stream") != "true" {
		a, err := h.service.Derive(c.Request.Context(), sessionID, artifactType)
		if err != nil {
			response.FromError(c, 500003, err)
			return
		}
		response.Success(c, gin.H{"artifact": toArtifactDTO(a)})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	writeFrame := func(payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	a, err := h.service.DeriveStream(ctx, sessionID, artifactType, func(token string) {
		writeFrame(gin.H{"type": "token", "token": token})
	})
	if err != nil {
		writeFrame(gin.H{"type": "end", "reason": "error", "error": err.Error()})
		return
	}

	writeFrame(gin.H{"type": "end", "reason": "complete", "artifact_type": a.ArtifactType})
}
