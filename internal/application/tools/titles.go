package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/chat"
	artifactApp "github.com/hackhero/backend/internal/application/artifact"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// 标题生成的系统提示词
const chatTitleSystemPrompt = "You write short, descriptive titles for chat sessions. " +
	"Return a single title of 3-8 words. No quotes, no trailing punctuation, no markdown."

// TitleService 会话标题生成
// 先尝试一次轻量 LLM 调用，失败或结果无效时回退到首条用户消息
type TitleService struct {
	sessions chat.SessionRepository
	messages chat.MessageRepository
	llm      llm.Completer
	models   llm.ModelSelector
	logger   *slog.Logger
}

// NewTitleService 创建标题服务
func NewTitleService(sessions chat.SessionRepository, messages chat.MessageRepository, completer llm.Completer, models llm.ModelSelector) *TitleService {
	return &TitleService{
		sessions: sessions,
		messages: messages,
		llm:      completer,
		models:   models,
		logger:   log.NewModuleLogger("tools", "titles"),
	}
}

// TitleResult 标题生成结果
type TitleResult struct {
	Title   string `json:"title"`
	Skipped bool   `json:"skipped,omitempty"`
	LLMUsed bool   `json:"llm_used"`
}

// Generate 生成并保存会话标题；已有标题且未 force 时跳过
func (s *TitleService) Generate(ctx context.Context, sessionID string, force bool) (*TitleResult, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.KindValidation, "session_id is required")
	}

	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.HasTitle() && !force {
		return &TitleResult{Title: session.Title, Skipped: true}, nil
	}

	history, err := s.messages.List(sessionID, 40, 0)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no chat history found for this session")
	}

	snippets := artifactApp.BuildConversationSnippets(history, 20)

	llmTitle := ""
	raw, err := s.llm.Complete(ctx, s.models.CurrentModel(), []llm.ChatMessage{
		{Role: chat.RoleSystem, Content: chatTitleSystemPrompt},
		{Role: chat.RoleUser, Content: "Conversation:\n\n" + snippets + "\nTitle:"},
	})
	if err != nil {
		s.logger.Debug("Title generation llm call failed, using fallback",
			"session_id", sessionID,
			"error", err,
		)
	} else {
		llmTitle = sanitizeTitle(raw)
	}

	title := llmTitle
	if !validTitle(title) {
		title = fallbackTitle(history)
	}
	if title == "" {
		title = "Chat Session"
	}

	if err := s.sessions.UpdateTitle(sessionID, title); err != nil {
		return nil, err
	}

	return &TitleResult{Title: title, LLMUsed: validTitle(llmTitle)}, nil
}

// sanitizeTitle 清理模型输出：取首行、去引号、去代码标记、限长、去尾标点
func sanitizeTitle(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[:i]
	}
	t = strings.Trim(t, `"'`)
	t = strings.ReplaceAll(t, "`", "")
	t = strings.Join(strings.Fields(t), " ")
	if len(t) > 80 {
		t = strings.TrimSpace(t[:80])
	}
	t = strings.TrimRight(t, ".!?;,:")
	return strings.TrimSpace(t)
}

// validTitle 至少两个词且不是通用占位
func validTitle(title string) bool {
	if title == "" || len(strings.Fields(title)) < 2 {
		return false
	}
	switch strings.ToLower(title) {
	case "new chat", "conversation", "untitled", "no title":
		return false
	}
	return true
}

// fallbackTitle 从首条非空用户消息提取前几个词
func fallbackTitle(messages []*chat.Message) string {
	var content string
	for _, m := range messages {
		if m.Role == chat.RoleUser {
			if c := strings.TrimSpace(m.Content); c != "" {
				content = c
				break
			}
		}
	}
	if content == "" {
		return ""
	}

	first := strings.ReplaceAll(content, "\n", " ")
	if i := strings.Index(first, ". "); i > 0 {
		first = first[:i]
	}
	words := strings.Fields(first)
	if len(words) > 8 {
		words = words[:8]
	}
	return sanitizeTitle(strings.Join(words, " "))
}
