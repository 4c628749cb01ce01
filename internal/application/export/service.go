package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/artifact"
	domainChat "github.com/hackhero/backend/internal/domain/chat"
	"github.com/hackhero/backend/internal/domain/rulectx"
	"github.com/hackhero/backend/internal/domain/todo"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// 产物缺失时的占位文本
const (
	ideaStub    = "No project idea generated yet. Use the dashboard to generate one.\n"
	stackStub   = "No tech stack generated yet. Use the dashboard to generate one.\n"
	summaryStub = "No submission summary generated yet. Use the dashboard to generate one.\n"
)

// Service 提交包导出
// 相同会话状态产出字节一致的 ZIP：条目顺序固定、时间戳固定、无额外属性
type Service struct {
	sessions  domainChat.SessionRepository
	messages  domainChat.MessageRepository
	todos     todo.Repository
	artifacts artifact.Repository
	rules     rulectx.Repository
	models    llm.ModelSelector
	logger    *slog.Logger
}

// NewService 创建导出服务
func NewService(
	sessions domainChat.SessionRepository,
	messages domainChat.MessageRepository,
	todos todo.Repository,
	artifacts artifact.Repository,
	rules rulectx.Repository,
	models llm.ModelSelector,
) *Service {
	return &Service{
		sessions:  sessions,
		messages:  messages,
		todos:     todos,
		artifacts: artifacts,
		rules:     rules,
		models:    models,
		logger:    log.NewModuleLogger("export", "service"),
	}
}

// todoExport todos.json 的单条结构
type todoExport struct {
	ID          int64   `json:"id"`
	Item        string  `json:"item"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	SortOrder   int     `json:"sort_order"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	CompletedAt *string `json:"completed_at"`
}

// sessionMetadata session_metadata.json 的结构
type sessionMetadata struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
	ModelID      string `json:"model_id"`
	ExportedAt   string `json:"exported_at"`
}

// SubmissionPack 组装提交包 ZIP
func (s *Service) SubmissionPack(sessionID string) ([]byte, string, error) {
	if sessionID == "" {
		return nil, "", apperr.New(apperr.KindValidation, "session_id is required")
	}

	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, "", err
	}

	ideaMD := s.artifactText(sessionID, artifact.TypeProjectIdea, ideaStub)
	stackMD := s.artifactText(sessionID, artifact.TypeTechStack, stackStub)
	summaryMD := s.artifactText(sessionID, artifact.TypeSubmissionSummary, summaryStub)

	todosJSON, err := s.buildTodosJSON(sessionID)
	if err != nil {
		return nil, "", err
	}

	rulesText, err := s.buildRulesText(sessionID)
	if err != nil {
		return nil, "", err
	}

	messageCount, err := s.messages.Count(sessionID)
	if err != nil {
		return nil, "", err
	}

	timeLayout := "2006-01-02T15:04:05Z"
	meta := sessionMetadata{
		SessionID:    session.SessionID,
		Title:        session.Title,
		CreatedAt:    session.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:    session.UpdatedAt.UTC().Format(timeLayout),
		MessageCount: messageCount,
		ModelID:      s.models.CurrentModel(),
		// 取自会话状态而非墙钟：相同状态必须产出相同字节
		ExportedAt: session.UpdatedAt.UTC().Format(timeLayout),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	// 条目顺序固定
	entries := []struct {
		name string
		data []byte
	}{
		{"idea.md", []byte(ensureTrailingNewline(ideaMD))},
		{"tech_stack.md", []byte(ensureTrailingNewline(stackMD))},
		{"summary.md", []byte(ensureTrailingNewline(summaryMD))},
		{"todos.json", todosJSON},
		{"rules_ingested.txt", []byte(rulesText)},
		{"session_metadata.json", metaJSON},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		// 时间戳保持零值，保证确定性
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.name,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create zip entry %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, "", fmt.Errorf("failed to write zip entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize zip: %w", err)
	}

	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	filename := fmt.Sprintf("submission_pack_%s.zip", short)

	s.logger.Info("Submission pack exported",
		"session_id", sessionID,
		"bytes", buf.Len(),
	)

	return buf.Bytes(), filename, nil
}

// artifactText 读取产物内容，缺失或为空时用占位
func (s *Service) artifactText(sessionID, artifactType, stub string) string {
	a, err := s.artifacts.Get(sessionID, artifactType)
	if err != nil {
		return stub
	}
	text := strings.TrimSpace(a.Content)
	if text == "" {
		return stub
	}
	return text
}

// buildTodosJSON 导出会话待办
func (s *Service) buildTodosJSON(sessionID string) ([]byte, error) {
	items, err := s.todos.List(sessionID)
	if err != nil {
		return nil, err
	}

	timeLayout := "2006-01-02T15:04:05Z"
	out := make([]todoExport, 0, len(items))
	for _, it := range items {
		e := todoExport{
			ID:        it.ID,
			Item:      it.Item,
			Status:    it.Status,
			Priority:  it.Priority,
			SortOrder: it.SortOrder,
			CreatedAt: it.CreatedAt.UTC().Format(timeLayout),
			UpdatedAt: it.UpdatedAt.UTC().Format(timeLayout),
		}
		if it.CompletedAt != nil {
			v := it.CompletedAt.UTC().Format(timeLayout)
			e.CompletedAt = &v
		}
		out = append(out, e)
	}

	return json.MarshalIndent(out, "", "  ")
}

// buildRulesText 活动上下文行拼接，行间两个空行
func (s *Service) buildRulesText(sessionID string) (string, error) {
	rows, err := s.rules.ListActive(sessionID)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "No rules/context available.\n", nil
	}

	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, strings.TrimSpace(r.Content))
	}
	return strings.Join(parts, "\n\n\n") + "\n", nil
}

func ensureTrailingNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
