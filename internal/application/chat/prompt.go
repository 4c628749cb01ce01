package chat

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	domainChat "github.com/hackhero/backend/internal/domain/chat"
	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/infrastructure/llm"
)

// 在包初始化时设置离线加载器，保证无网络环境可用
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	tokenEncoding     *tiktoken.Tiktoken
	tokenEncodingOnce sync.Once
)

// countTokens 估算文本 token 数
// tiktoken 初始化失败时退化为按 4 字符 1 token 估算
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	tokenEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEncoding = enc
		}
	})
	if tokenEncoding == nil {
		return (len(text) + 3) / 4
	}
	return len(tokenEncoding.Encode(text, nil, nil))
}

// BuildSystemPrompt 组装系统提示词：固定人设 + 命中的规则片段 + 工具指引
func BuildSystemPrompt(hits []domainRAG.RetrievedChunk) string {
	var ruleText strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&ruleText, "Rule Chunk %d:\n%s\n", h.ChunkID, h.Text)
	}

	return fmt.Sprintf(`You are **HackHero**, an expert assistant that helps participants create, refine, and submit hackathon projects completely offline.

You have access to function-calling tools. Use them when they clearly help the user:
- Use add_todo to add actionable tasks to the project To-Do list.
- Use list_todos to recall current tasks and trust its output. Present the items without speculation or self-correction.
- Use clear_todos to reset the task list when asked.
- Use list_directory to explore local files when requested.

Important runtime rule for tools:
- The current chat session id (session_id) is automatically provided by the system at execution time. Never ask the user for the session id. You may omit it in your arguments; the runtime will inject the correct value. If you include it, the system value will override it.

Rules context (authoritative):
%s
Guidance:
- Prefer using tools to perform actions instead of describing actions.
- When planning work, convert steps into separate add_todo calls.
- Keep the tone clear, concise, and encouraging. Do not mention any external APIs or internet resources.
- Cite rule chunk numbers in brackets if you refer to a specific rule.`, ruleText.String())
}

// truncateHistory 丢弃最旧的消息直到落入 token 预算
// 只裁剪历史，永不触碰末尾的新用户消息
func truncateHistory(history []*domainChat.Message, budget int) []*domainChat.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	total := 0
	counts := make([]int, len(history))
	for i, m := range history {
		counts[i] = countTokens(m.Content) + 4
		total += counts[i]
	}

	start := 0
	for start < len(history)-1 && total > budget {
		total -= counts[start]
		start++
	}
	return history[start:]
}

// 上下文块标记，持久化与展示前剥离
var (
	fileBlockPattern    = regexp.MustCompile(`(?is)\[FILE:[^\]]+\][\s\S]*?\[/FILE\]`)
	urlBlockPattern     = regexp.MustCompile(`(?is)\[URL:[^\]]+\][\s\S]*?\[/URL\]`)
	urlTextBlockPattern = regexp.MustCompile(`(?is)\[URL_TEXT\][\s\S]*?\[/URL_TEXT\]`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// StripContextBlocks 剥离临时上下文块标记
// 发送给模型的消息包含上下文块，落库与列表展示的不包含
func StripContextBlocks(text string) string {
	if text == "" {
		return text
	}
	cleaned := fileBlockPattern.ReplaceAllString(text, "")
	cleaned = urlBlockPattern.ReplaceAllString(cleaned, "")
	cleaned = urlTextBlockPattern.ReplaceAllString(cleaned, "")
	cleaned = multiNewlinePattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// buildMessages 组装送往 provider 的消息序列
func buildMessages(systemPrompt string, history []*domainChat.Message, userContent string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: domainChat.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: domainChat.RoleUser, Content: userContent})
	return messages
}
