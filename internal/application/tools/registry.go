package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	artifactApp "github.com/hackhero/backend/internal/application/artifact"
	"github.com/hackhero/backend/internal/domain/artifact"
	"github.com/hackhero/backend/internal/domain/todo"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// Kind 工具种类，封闭集合
type Kind string

// 工具种类常量
const (
	KindGetSessionID         Kind = "get_session_id"
	KindListTodos            Kind = "list_todos"
	KindAddTodo              Kind = "add_todo"
	KindClearTodos           Kind = "clear_todos"
	KindListDirectory        Kind = "list_directory"
	KindDeriveProjectIdea    Kind = "derive_project_idea"
	KindCreateTechStack      Kind = "create_tech_stack"
	KindSummarizeChatHistory Kind = "summarize_chat_history"
	KindGenerateChatTitle    Kind = "generate_chat_title"
)

// Call 一次待执行的工具调用
type Call struct {
	ID        string
	Name      string
	Arguments string // JSON 参数串
}

// Result 工具执行结果
// 处理器错误不会外抛，统一以 ok=false 回馈给模型
type Result struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Registry 工具注册表：声明 schema 并分发执行
type Registry struct {
	todos       todo.Repository
	artifacts   *artifactApp.Service
	titles      *TitleService
	repoRoot    string
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewRegistry 创建工具注册表
func NewRegistry(cfg *config.Config, todos todo.Repository, artifacts *artifactApp.Service, titles *TitleService) *Registry {
	return &Registry{
		todos:       todos,
		artifacts:   artifacts,
		titles:      titles,
		repoRoot:    cfg.Tools.RepoRoot,
		callTimeout: cfg.Chat.ToolCallTimeout,
		logger:      log.NewModuleLogger("tools", "registry"),
	}
}

// sessionIDProp session_id 参数声明，运行时注入实际值
func sessionIDProp() map[string]any {
	return map[string]any{"type": "string", "description": "Current chat session ID"}
}

// Schemas 全部工具的 function-calling 声明
func (r *Registry) Schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		schema(KindGetSessionID,
			"Return the active chat session_id so the model never needs to ask the user.",
			map[string]any{"session_id": sessionIDProp()}, nil),
		schema(KindListTodos,
			"List the current to-do items maintained by the agent.",
			map[string]any{
				"session_id": sessionIDProp(),
				"detailed":   map[string]any{"type": "boolean", "description": "Include status and timestamps"},
			}, nil),
		schema(KindAddTodo,
			"Add a new item to the agent to-do list. ONLY add if the user asks for it.",
			map[string]any{
				"item":       map[string]any{"type": "string"},
				"session_id": sessionIDProp(),
			}, []string{"item", "session_id"}),
		schema(KindClearTodos,
			"Clear all items from the current chat session to-do list.",
			map[string]any{"session_id": sessionIDProp()}, []string{"session_id"}),
		schema(KindListDirectory,
			"List files and folders within the project directory (safe, relative paths only).",
			map[string]any{
				"path": map[string]any{"type": "string", "description": "Relative path from project root"},
			}, nil),
		schema(KindDeriveProjectIdea,
			"Analyze chat history to automatically derive and save a project idea for the hackathon based on conversation topics.",
			map[string]any{"session_id": sessionIDProp()}, []string{"session_id"}),
		schema(KindCreateTechStack,
			"Analyze chat history to automatically create and save a recommended tech stack based on technologies mentioned in conversation.",
			map[string]any{"session_id": sessionIDProp()}, []string{"session_id"}),
		schema(KindSummarizeChatHistory,
			"Generate comprehensive submission notes by summarizing the entire chat history, progress, and todos for hackathon submission.",
			map[string]any{"session_id": sessionIDProp()}, []string{"session_id"}),
		schema(KindGenerateChatTitle,
			"Create and save a concise, descriptive chat title from recent conversation.",
			map[string]any{
				"session_id": sessionIDProp(),
				"force":      map[string]any{"type": "boolean", "description": "Regenerate even if a title already exists"},
			}, []string{"session_id"}),
	}
}

func schema(kind Kind, description string, props map[string]any, required []string) llm.ToolSchema {
	if required == nil {
		required = []string{}
	}
	return llm.ToolSchema{
		Type: "function",
		Function: llm.FunctionSchema{
			Name:        string(kind),
			Description: description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		},
	}
}

// 各工具的参数结构
type listTodosArgs struct {
	SessionID string `json:"session_id"`
	Detailed  bool   `json:"detailed"`
}

type addTodoArgs struct {
	Item      string `json:"item"`
	SessionID string `json:"session_id"`
}

type listDirectoryArgs struct {
	Path string `json:"path"`
}

type titleArgs struct {
	SessionID string `json:"session_id"`
	Force     bool   `json:"force"`
}

// Execute 执行一次工具调用
// 运行时注入的 sessionID 覆盖模型给出的值；错误一律以 ok=false 返回
func (r *Registry) Execute(ctx context.Context, call Call, sessionID string) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Tool handler panicked",
				"tool", call.Name,
				"panic", rec,
			)
			result = Result{OK: false, Error: fmt.Sprintf("tool %s failed unexpectedly", call.Name)}
		}
	}()

	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	r.logger.Info("Executing tool",
		"tool", call.Name,
		"call_id", call.ID,
		"session_id", sessionID,
	)

	switch Kind(call.Name) {
	case KindGetSessionID:
		return Result{OK: true, Result: map[string]string{"session_id": sessionID}}

	case KindListTodos:
		var args listTodosArgs
		if err := parseArgs(call.Arguments, &args); err != nil {
			return errResult(err)
		}
		items, err := r.todos.List(sessionID)
		if err != nil {
			return errResult(err)
		}
		if args.Detailed {
			return Result{OK: true, Result: detailedTodos(items)}
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, it.Item)
		}
		return Result{OK: true, Result: out}

	case KindAddTodo:
		var args addTodoArgs
		if err := parseArgs(call.Arguments, &args); err != nil {
			return errResult(err)
		}
		if _, err := r.todos.Add(args.Item, sessionID); err != nil {
			return errResult(err)
		}
		items, err := r.todos.List(sessionID)
		if err != nil {
			return errResult(err)
		}
		return Result{OK: true, Result: map[string]int{"count": len(items)}}

	case KindClearTodos:
		deleted, err := r.todos.ClearSession(sessionID)
		if err != nil {
			return errResult(err)
		}
		return Result{OK: true, Result: map[string]int64{"deleted": deleted}}

	case KindListDirectory:
		var args listDirectoryArgs
		if err := parseArgs(call.Arguments, &args); err != nil {
			return errResult(err)
		}
		items, err := ListDirectory(r.repoRoot, args.Path)
		if err != nil {
			return errResult(err)
		}
		return Result{OK: true, Result: map[string]any{"items": items}}

	case KindDeriveProjectIdea:
		return r.deriveArtifact(ctx, sessionID, artifact.TypeProjectIdea)

	case KindCreateTechStack:
		return r.deriveArtifact(ctx, sessionID, artifact.TypeTechStack)

	case KindSummarizeChatHistory:
		return r.deriveArtifact(ctx, sessionID, artifact.TypeSubmissionSummary)

	case KindGenerateChatTitle:
		var args titleArgs
		if err := parseArgs(call.Arguments, &args); err != nil {
			return errResult(err)
		}
		res, err := r.titles.Generate(ctx, sessionID, args.Force)
		if err != nil {
			return errResult(err)
		}
		return Result{OK: true, Result: res}
	}

	return Result{OK: false, Error: fmt.Sprintf("unknown function: %s", call.Name)}
}

// deriveArtifact 生成产物类工具的公共路径
func (r *Registry) deriveArtifact(ctx context.Context, sessionID, artifactType string) Result {
	a, err := r.artifacts.Derive(ctx, sessionID, artifactType)
	if err != nil {
		return errResult(err)
	}
	return Result{OK: true, Result: map[string]any{
		"artifact_type": a.ArtifactType,
		"content":       a.Content,
	}}
}

// detailedTodos 详细待办视图
func detailedTodos(items []*todo.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		d := map[string]any{
			"id":         it.ID,
			"item":       it.Item,
			"status":     it.Status,
			"priority":   it.Priority,
			"sort_order": it.SortOrder,
			"created_at": it.CreatedAt,
			"updated_at": it.UpdatedAt,
		}
		if it.CompletedAt != nil {
			d["completed_at"] = *it.CompletedAt
		}
		if it.SessionID != "" {
			d["session_id"] = it.SessionID
		}
		out = append(out, d)
	}
	return out
}

// parseArgs 解析工具参数 JSON
func parseArgs(arguments string, dst any) error {
	if arguments == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(arguments), dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func errResult(err error) Result {
	return Result{OK: false, Error: err.Error()}
}
