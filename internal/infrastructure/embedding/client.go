package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// Encoder 文本向量化接口
// Encode 是纯函数：相同输入产出相同向量；可并发调用
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// Client Embedding API 客户端
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 Embedding 客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.EmbeddingBaseURL(), "/"),
		apiKey:  cfg.Provider.APIKey,
		model:   cfg.Embedding.ModelID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.NewModuleLogger("embedding", "client"),
	}
}

// ModelID 向量化模型标识
func (c *Client) ModelID() string {
	return c.model
}

// embeddingRequest Embedding 请求
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse Embedding 响应
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Encode 批量向量化文本
func (c *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.New(apperr.KindValidation, "texts must not be empty")
	}

	// OpenAI embeddings API 批量上限
	const maxBatchSize = 2048

	if len(texts) <= maxBatchSize {
		return c.encodeBatch(ctx, texts)
	}

	c.logger.Info("Splitting texts into batches",
		"total_texts", len(texts),
		"batch_limit", maxBatchSize,
	)

	allVectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.encodeBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch starting at %d: %w", i, err)
		}
		allVectors = append(allVectors, vectors...)
	}
	return allVectors, nil
}

// encodeBatch 处理单个批次，带重试
func (c *Client) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const maxRetries = 3

	reqBody := embeddingRequest{
		Model: c.model,
		Input: texts,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := c.baseURL + "/embeddings"

	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retry) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("Embedding request failed, retrying",
				"attempt", retry+1,
				"max_retries", maxRetries,
				"error", err,
			)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
			c.logger.Warn("Embedding request returned error, retrying",
				"attempt", retry+1,
				"status_code", resp.StatusCode,
			)
			continue
		}

		var parsed embeddingResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding response: %w", err)
		}

		vectors := make([][]float32, len(texts))
		for _, data := range parsed.Data {
			if data.Index >= 0 && data.Index < len(vectors) {
				vectors[data.Index] = data.Embedding
			}
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("embedding response missing vector for input %d", i)
			}
		}
		return vectors, nil
	}

	return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "embedding request failed after retries", lastErr)
}

// Dimension 通过一次探测请求获取向量维度
func (c *Client) Dimension(ctx context.Context) (int, error) {
	vectors, err := c.Encode(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("invalid embedding response")
	}
	return len(vectors[0]), nil
}

// 编译时检查接口实现
var _ Encoder = (*Client)(nil)
