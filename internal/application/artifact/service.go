package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/artifact"
	"github.com/hackhero/backend/internal/domain/chat"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// 产物生成的系统提示词
const (
	projectIdeaSystemPrompt = "You are a senior product strategist. From the conversation, craft a concise, " +
		"specific hackathon project idea. Keep it actionable and focused. Return 1-2 sentences. " +
		"Avoid filler and generalities."

	techStackSystemPrompt = "You are a senior software architect. Based on the conversation, " +
		"produce a concise recommended tech stack for a hackathon project. " +
		"Output should be a single short paragraph or 3-4 labeled lines. " +
		"Prefer the format: 'Frontend: ...' 'Backend: ...' 'Database: ...' 'Additional: ...'. " +
		"Avoid prose beyond the stack."

	submissionSummarySystemPrompt = "You are an experienced engineering manager. Summarize the conversation into a brief " +
		"project progress note highlighting accomplishments, challenges, and next steps. " +
		"Return at most 2 short paragraphs or up to 5 concise bullet points. Be concrete and avoid fluff."
)

// 参与总结的最大消息数
const maxSnippetMessages = 40

// Service 产物派生：以关闭工具的单轮补全从会话历史生成产物
type Service struct {
	sessions  chat.SessionRepository
	messages  chat.MessageRepository
	artifacts artifact.Repository
	provider  llm.Streamer
	models    llm.ModelSelector
	logger    *slog.Logger
}

// NewService 创建产物派生服务
func NewService(
	sessions chat.SessionRepository,
	messages chat.MessageRepository,
	artifacts artifact.Repository,
	provider llm.Streamer,
	models llm.ModelSelector,
) *Service {
	return &Service{
		sessions:  sessions,
		messages:  messages,
		artifacts: artifacts,
		provider:  provider,
		models:    models,
		logger:    log.NewModuleLogger("artifact", "service"),
	}
}

// systemPromptFor 产物类型对应的系统提示词
func systemPromptFor(artifactType string) (string, error) {
	switch artifactType {
	case artifact.TypeProjectIdea:
		return projectIdeaSystemPrompt, nil
	case artifact.TypeTechStack:
		return techStackSystemPrompt, nil
	case artifact.TypeSubmissionSummary:
		return submissionSummarySystemPrompt, nil
	}
	return "", apperr.Newf(apperr.KindValidation, "invalid artifact type: %s", artifactType)
}

// Derive 生成产物并 upsert 存储
func (s *Service) Derive(ctx context.Context, sessionID, artifactType string) (*artifact.ProjectArtifact, error) {
	return s.derive(ctx, sessionID, artifactType, nil)
}

// DeriveStream 生成产物，token 经 onToken 回调流出后再 upsert 存储
func (s *Service) DeriveStream(ctx context.Context, sessionID, artifactType string, onToken func(token string)) (*artifact.ProjectArtifact, error) {
	return s.derive(ctx, sessionID, artifactType, onToken)
}

func (s *Service) derive(ctx context.Context, sessionID, artifactType string, onToken func(string)) (*artifact.ProjectArtifact, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.KindValidation, "session_id is required")
	}

	systemPrompt, err := systemPromptFor(artifactType)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}

	history, err := s.messages.List(sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperr.New(apperr.KindValidation, "no chat history found for this session")
	}

	snippets := BuildConversationSnippets(history, maxSnippetMessages)
	userPrompt := fmt.Sprintf("Conversation so far:\n\n%s\n\nProduce the requested output now.", snippets)

	messages := []llm.ChatMessage{
		{Role: chat.RoleSystem, Content: systemPrompt},
		{Role: chat.RoleUser, Content: userPrompt},
	}

	// 单轮、关闭工具
	frames, err := s.provider.StreamChat(ctx, s.models.CurrentModel(), messages, nil)
	if err != nil {
		return nil, err
	}

	var parts []string
	for frame := range frames {
		switch frame.Type {
		case llm.FrameContent:
			parts = append(parts, frame.Content)
			if onToken != nil {
				onToken(frame.Content)
			}
		case llm.FrameError:
			return nil, frame.Err
		}
	}

	content := strings.TrimSpace(strings.Join(parts, ""))
	if content == "" {
		return nil, apperr.New(apperr.KindUpstreamUnavailable, "model produced no content")
	}

	stored, err := s.artifacts.Put(sessionID, artifactType, content, map[string]any{
		"model_id": s.models.CurrentModel(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Artifact generated",
		"session_id", sessionID,
		"artifact_type", artifactType,
		"content_length", len(content),
	)
	return stored, nil
}

// BuildConversationSnippets 将历史消息压缩为总结输入
// 只取最近 maxMessages 条，过长消息截断
func BuildConversationSnippets(messages []*chat.Message, maxMessages int) string {
	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}

	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if len(content) > 600 {
			content = content[:600] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}
