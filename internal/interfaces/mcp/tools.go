package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SessionInput 仅携带会话 ID 的输入
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"the chat session id"`
}

// ToolOutput 工具执行结果的统一输出
type ToolOutput struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// toOutput 注册表结果转 MCP 输出
func toOutput(ok bool, result any, errMsg string) (ToolOutput, error) {
	out := ToolOutput{OK: ok, Error: errMsg}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return ToolOutput{}, fmt.Errorf("failed to encode tool result: %w", err)
		}
		out.Result = data
	}
	return out, nil
}

func (s *MCPServer) getSessionIDTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	if input.SessionID == "" {
		return nil, ToolOutput{}, fmt.Errorf("session_id is required")
	}
	res := s.execute(ctx, "get_session_id", "{}", input.SessionID)
	out, err := toOutput(res.OK, res.Result, res.Error)
	return nil, out, err
}

// ListTodosInput list_todos 输入
type ListTodosInput struct {
	SessionID string `json:"session_id" jsonschema:"the chat session id"`
	Detailed  bool   `json:"detailed,omitempty" jsonschema:"include status and timestamps"`
}

func (s *MCPServer) listTodosTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListTodosInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	args, _ := json.Marshal(map[string]any{"detailed": input.Detailed})
	res := s.execute(ctx, "list_todos", string(args), input.SessionID)
	out, err := toOutput(res.OK, res.Result, res.Error)
	return nil, out, err
}

// AddTodoInput add_todo 输入
type AddTodoInput struct {
	SessionID string `json:"session_id" jsonschema:"the chat session id"`
	Item      string `json:"item" jsonschema:"the to-do item text"`
}

func (s *MCPServer) addTodoTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddTodoInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	if input.Item == "" {
		return nil, ToolOutput{}, fmt.Errorf("item is required")
	}
	args, _ := json.Marshal(map[string]any{"item": input.Item})
	res := s.execute(ctx, "add_todo", string(args), input.SessionID)
	out, err := toOutput(res.OK, res.Result, res.Error)
	return nil, out, err
}

func (s *MCPServer) clearTodosTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	if input.SessionID == "" {
		return nil, ToolOutput{}, fmt.Errorf("session_id is required")
	}
	res := s.execute(ctx, "clear_todos", "{}", input.SessionID)
	out, err := toOutput(res.OK, res.Result, res.Error)
	return nil, out, err
}

// ListDirectoryInput list_directory 输入
type ListDirectoryInput struct {
	Path string `json:"path,omitempty" jsonschema:"relative path from the repository root"`
}

func (s *MCPServer) listDirectoryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListDirectoryInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	args, _ := json.Marshal(map[string]any{"path": input.Path})
	res := s.execute(ctx, "list_directory", string(args), "")
	out, err := toOutput(res.OK, res.Result, res.Error)
	return nil, out, err
}

// deriveArtifactTool 产物类工具的公共路径
func (s *MCPServer) deriveArtifactTool(ctx context.Context, name string, input SessionInput) (ToolOutput, error) {
	if input.SessionID == "" {
		return ToolOutput{}, fmt.Errorf("session_id is required")
	}
	res := s.execute(ctx, name, "{}", input.SessionID)
	return toOutput(res.OK, res.Result, res.Error)
}

func (s *MCPServer) deriveProjectIdeaTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	out, err := s.deriveArtifactTool(ctx, "derive_project_idea", input)
	return nil, out, err
}

func (s *MCPServer) createTechStackTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	out, err := s.deriveArtifactTool(ctx, "create_tech_stack", input)
	return nil, out, err
}

func (s *MCPServer) summarizeChatHistoryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	out, err := s.deriveArtifactTool(ctx, "summarize_chat_history", input)
	return nil, out, err
}

// GenerateChatTitleInput generate_chat_title 输入
type GenerateChatTitleInput struct {
	SessionID string `json:"session_id" jsonschema:"the chat session id"`
	Force     bool   `json:"force,omitempty" jsonschema:"regenerate even if a title exists"`
}

func (s *MCPServer) generateChatTitleTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GenerateChatTitleInput,
) (*mcp.CallToolResult, ToolOutput, error) {
	if input.SessionID == "" {
		return nil, ToolOutput{}, fmt.Errorf("session_id is required")
	}
	args, _ := json.Marshal(map[string]any{"force": input.Force})
	res := s.execute(ctx, "generate_chat_title", string(args), input.SessionID)
	out, err := toOutput(res.OK, res.Result, res.Error)
	return nil, out, err
}
