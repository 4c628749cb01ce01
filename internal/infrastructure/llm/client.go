package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/infrastructure/storage"
)

// 模型选择的持久化键
const settingCurrentModel = "current_model"

// Client OpenAI 兼容端点客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	settings   storage.SettingRepository
	logger     *slog.Logger

	mu           sync.RWMutex
	currentModel string
	cachedModels []ModelInfo
}

// NewClient 创建 LLM 客户端，尝试恢复持久化的模型选择
func NewClient(cfg *config.Config, settings storage.SettingRepository) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.Provider.BaseURL, "/"),
		apiKey:  cfg.Provider.APIKey,
		httpClient: &http.Client{
			Timeout: 0, // 流式响应无总超时，由调用方 ctx 控制
		},
		settings:     settings,
		currentModel: cfg.Provider.DefaultModelID,
		logger:       log.NewModuleLogger("llm", "client"),
	}

	if saved, err := settings.Get(settingCurrentModel); err == nil && saved != "" {
		c.currentModel = saved
	}

	return c
}

// CurrentModel 当前选择的模型
func (c *Client) CurrentModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentModel
}

// SetModel 切换模型并持久化，模型必须在可用列表内
func (c *Client) SetModel(ctx context.Context, modelID string) error {
	if modelID == "" {
		return apperr.New(apperr.KindValidation, "model id must not be empty")
	}

	models, err := c.ListModels(ctx)
	if err == nil {
		found := false
		for _, m := range models {
			if m.ID == modelID {
				found = true
				break
			}
		}
		if !found {
			return apperr.Newf(apperr.KindValidation, "unknown model: %s", modelID)
		}
	}

	c.mu.Lock()
	c.currentModel = modelID
	c.mu.Unlock()

	if err := c.settings.Put(settingCurrentModel, modelID); err != nil {
		return fmt.Errorf("failed to persist model selection: %w", err)
	}

	c.logger.Info("Model selection changed", "model", modelID)
	return nil
}

// modelsResponse /models 响应
type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels 列出可用模型，端点不可达时回退到当前模型
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create models request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.doWithTimeout(req, 10*time.Second)
	if err != nil {
		c.logger.Warn("Model list unreachable, using fallback",
			"error", err,
		)
		return c.fallbackModels(), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("Model list returned error, using fallback",
			"status_code", resp.StatusCode,
			"response_body", string(body),
		)
		return c.fallbackModels(), nil
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, ModelInfo{ID: m.ID, DisplayName: m.ID})
	}
	if len(models) == 0 {
		return c.fallbackModels(), nil
	}

	c.mu.Lock()
	c.cachedModels = models
	c.mu.Unlock()
	return models, nil
}

// fallbackModels 端点不可达时的模型列表
func (c *Client) fallbackModels() []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.cachedModels) > 0 {
		return c.cachedModels
	}
	return []ModelInfo{{ID: c.currentModel, DisplayName: c.currentModel}}
}

// Status 提供方连通性状态
type Status struct {
	Connected       bool        `json:"connected"`
	BaseURL         string      `json:"base_url"`
	Model           string      `json:"model"`
	AvailableModels []ModelInfo `json:"available_models"`
	Error           string      `json:"error,omitempty"`
}

// CheckStatus 探测端点并返回状态
func (c *Client) CheckStatus(ctx context.Context) Status {
	st := Status{
		BaseURL: c.baseURL,
		Model:   c.CurrentModel(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		st.Error = err.Error()
		st.AvailableModels = c.fallbackModels()
		return st
	}
	c.setHeaders(req)

	resp, err := c.doWithTimeout(req, 5*time.Second)
	if err != nil {
		st.Error = err.Error()
		st.AvailableModels = c.fallbackModels()
		return st
	}
	_ = resp.Body.Close()

	st.Connected = resp.StatusCode == http.StatusOK
	models, _ := c.ListModels(ctx)
	st.AvailableModels = models
	return st
}

// chatRequest chat/completions 请求
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []ToolSchema  `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// chatResponse 非流式响应
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete 单次非流式补全
func (c *Client) Complete(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	if model == "" {
		model = c.CurrentModel()
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.2,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamUnavailable, "chat completion request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.Newf(apperr.KindUpstreamUnavailable, "chat completion returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.New(apperr.KindUpstreamUnavailable, "chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// setHeaders 通用请求头
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doWithTimeout 为单个请求附加超时
func (c *Client) doWithTimeout(req *http.Request, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	// body 关闭后再释放超时
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser 关闭 body 时释放关联的 context
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// 编译时检查接口实现
var (
	_ Streamer      = (*Client)(nil)
	_ Completer     = (*Client)(nil)
	_ ModelSelector = (*Client)(nil)
)
