package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	chatApp "github.com/hackhero/backend/internal/application/chat"
	domainChat "github.com/hackhero/backend/internal/domain/chat"
	"github.com/hackhero/backend/internal/infrastructure/extract"
	"github.com/hackhero/backend/internal/infrastructure/fetch"
	"github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/interfaces/http/response"
)

// 事件静默超过此时长则发送心跳注释行
const heartbeatInterval = 15 * time.Second

// 单次请求最多处理的附件数
const maxChatFiles = 10

// ChatHandler 流式聊天处理器
type ChatHandler struct {
	orchestrator *chatApp.Orchestrator
	extractor    *extract.Service
	fetcher      *fetch.URLFetcher
	logger       *slog.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(orchestrator *chatApp.Orchestrator, extractor *extract.Service, fetcher *fetch.URLFetcher) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		extractor:    extractor,
		fetcher:      fetcher,
		logger:       log.NewModuleLogger("http", "chat"),
	}
}

// Stream 一次流式聊天回合
// @Summary 流式聊天
// @Tags 聊天
// @Accept mpfd
// @Produce text/event-stream
// @Param user_input formData string true "用户输入"
// @Param session_id formData string false "会话 ID，缺省时生成"
// @Param url_text formData string false "URL 或补充文本"
// @Success 200 {string} string "SSE 事件流"
// @Failure 400 {object} response.ErrorResponse
// @Router /chat-stream [post]
func (h *ChatHandler) Stream(c *gin.Context) {
	userInput := strings.TrimSpace(c.PostForm("user_input"))
	if userInput == "" {
		response.Error(c, http.StatusBadRequest, 100001, "user_input is required")
		return
	}
	sessionID := c.PostForm("session_id")
	urlText := c.PostForm("url_text")

	var contextBlocks []string
	metadata := &domainChat.MessageMetadata{}

	// 附件 → [FILE:…] 上下文块
	if form, err := c.MultipartForm(); err == nil && form != nil {
		files := form.File["files"]
		if len(files) > maxChatFiles {
			files = files[:maxChatFiles]
		}
		for _, fh := range files {
			text, err := h.extractUpload(fh)
			if err != nil {
				text = fmt.Sprintf("[File '%s' skipped: %v]", fh.Filename, err)
			}
			contextBlocks = append(contextBlocks, fmt.Sprintf("[FILE:%s]\n%s\n[/FILE]", fh.Filename, text))
			metadata.Files = append(metadata.Files, domainChat.FileRef{
				Filename:  fh.Filename,
				SizeBytes: fh.Size,
			})
		}
	}

	// url_text → 抓取 URL 或原样作为补充文本
	if urlText != "" {
		if strings.HasPrefix(urlText, "http://") || strings.HasPrefix(urlText, "https://") {
			content, err := h.fetcher.Fetch(c.Request.Context(), urlText)
			if err != nil {
				contextBlocks = append(contextBlocks, fmt.Sprintf("[URL_FETCH_FAILED:%s]\nError: %v", urlText, err))
			} else {
				contextBlocks = append(contextBlocks, fmt.Sprintf("[URL:%s]\n%s\n[/URL]", urlText, content))
			}
			metadata.URL = urlText
		} else {
			contextBlocks = append(contextBlocks, fmt.Sprintf("[URL_TEXT]\n%s\n[/URL_TEXT]", urlText))
			preview := urlText
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}
			metadata.URLText = preview
		}
	}

	if len(metadata.Files) == 0 && metadata.URL == "" && metadata.URLText == "" {
		metadata = nil
	}

	events, _, err := h.orchestrator.StreamTurn(c.Request.Context(), chatApp.TurnRequest{
		SessionID:     sessionID,
		UserInput:     userInput,
		ContextBlocks: contextBlocks,
		Metadata:      metadata,
	})
	if err != nil {
		response.FromError(c, 200001, err)
		return
	}

	writeEventStream(c, events)
}

// extractUpload 读取并提取单个上传文件
func (h *ChatHandler) extractUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return h.extractor.ExtractFile(fh.Filename, data)
}

// writeEventStream 将事件通道写为 SSE
// 每个事件一个 data: 块；静默间隙发送 ": ping" 注释行保活
func writeEventStream(c *gin.Context, events <-chan chatApp.Event) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				return
			}
			c.Writer.Flush()
			heartbeat.Reset(heartbeatInterval)

		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
