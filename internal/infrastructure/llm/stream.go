package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hackhero/backend/internal/domain/apperr"
)

// 适配器输出通道的容量；消费方（SSE 写出端）是最慢环节，
// 容量写满后读取 provider 流的 goroutine 阻塞，形成背压
const frameChanSize = 32

// streamChunk 流式响应的单个 SSE 块
type streamChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// toolCallBuffer 按 index 组装工具调用增量
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// StreamChat 发起一次流式补全
// provider 的 reasoning/内容/工具调用增量被规整为 Frame；
// 工具调用增量在流结束时组装为完整调用后才交给消费方
func (c *Client) StreamChat(ctx context.Context, model string, messages []ChatMessage, tools []ToolSchema) (<-chan Frame, error) {
	if model == "" {
		model = c.CurrentModel()
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Tools:       tools,
		Temperature: 0.7,
		Stream:      true,
	}
	if len(tools) > 0 {
		reqBody.ToolChoice = "auto"
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "stream request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, apperr.Newf(apperr.KindUpstreamUnavailable, "stream request returned status %d: %s", resp.StatusCode, string(body))
	}

	frames := make(chan Frame, frameChanSize)
	go c.consumeStream(ctx, resp.Body, frames)
	return frames, nil
}

// consumeStream 读取 SSE 流并产出帧，结束时关闭通道
func (c *Client) consumeStream(ctx context.Context, body io.ReadCloser, frames chan<- Frame) {
	defer close(frames)
	defer func() { _ = body.Close() }()

	buffers := make(map[int]*toolCallBuffer)
	finishReason := ""

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	emit := func(f Frame) bool {
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("Skipping malformed stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}

		if reasoning := firstNonEmpty(choice.Delta.Reasoning, choice.Delta.ReasoningContent); reasoning != "" {
			if !emit(Frame{Type: FrameThinking, Content: reasoning}) {
				return
			}
		}
		if choice.Delta.Content != "" {
			if !emit(Frame{Type: FrameContent, Content: choice.Delta.Content}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			buf, ok := buffers[tc.Index]
			if !ok {
				buf = &toolCallBuffer{}
				buffers[tc.Index] = buf
			}
			if tc.ID != "" {
				buf.id = tc.ID
			}
			if tc.Function.Name != "" {
				buf.name = tc.Function.Name
			}
			buf.args.WriteString(tc.Function.Arguments)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		emit(Frame{Type: FrameError, Err: apperr.Wrap(apperr.KindUpstreamUnavailable, "stream read failed", err)})
		return
	}
	if ctx.Err() != nil {
		return
	}

	if len(buffers) > 0 {
		calls, err := assembleToolCalls(buffers)
		if err != nil {
			// provider 在参数未收完时就结束了流：整轮判为失败
			emit(Frame{Type: FrameError, Err: err})
			return
		}
		if !emit(Frame{Type: FrameToolCall, ToolCalls: calls}) {
			return
		}
	}

	emit(Frame{Type: FrameDone, FinishReason: finishReason})
}

// assembleToolCalls 将增量缓冲组装为完整调用
// 参数必须是完整 JSON，缺 ID 的调用补发一个本地 ID
func assembleToolCalls(buffers map[int]*toolCallBuffer) ([]ToolCall, error) {
	indexes := make([]int, 0, len(buffers))
	for idx := range buffers {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(buffers))
	for _, idx := range indexes {
		buf := buffers[idx]
		args := buf.args.String()
		if args == "" {
			args = "{}"
		}
		if buf.name == "" {
			return nil, apperr.New(apperr.KindUpstreamUnavailable, "tool call announced without a name")
		}
		if !json.Valid([]byte(args)) {
			return nil, apperr.Newf(apperr.KindUpstreamUnavailable, "tool call %s has incomplete arguments", buf.name)
		}
		id := buf.id
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		calls = append(calls, ToolCall{ID: id, Name: buf.name, Arguments: args})
	}
	return calls, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
