package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hackhero/backend/internal/application/tools"
)

// MCPServer MCP 服务器
// 把工具注册表同时开放给其他本地代理（Claude/Cursor 等 MCP 客户端）
type MCPServer struct {
	server   *mcp.Server
	handler  http.Handler
	registry *tools.Registry
}

// NewServer 创建 MCP 服务器
func NewServer(registry *tools.Registry) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "hackhero-backend",
			Version: "0.1.0",
		},
		nil, // 使用默认能力
	)

	mcpServer := &MCPServer{
		server:   server,
		registry: registry,
	}

	// 注册工具：get_session_id
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session_id",
		Description: "Echo back the chat session id the caller is operating on. Parameters: session_id (string, required).",
	}, mcpServer.getSessionIDTool)

	// 注册工具：list_todos
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_todos",
		Description: "List the to-do items of a chat session. Parameters: session_id (string, required), detailed (bool, optional).",
	}, mcpServer.listTodosTool)

	// 注册工具：add_todo
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_todo",
		Description: "Add a to-do item to a chat session. Parameters: session_id (string, required), item (string, required).",
	}, mcpServer.addTodoTool)

	// 注册工具：clear_todos
	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_todos",
		Description: "Clear all to-do items of a chat session. Parameters: session_id (string, required).",
	}, mcpServer.clearTodosTool)

	// 注册工具：list_directory
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_directory",
		Description: "List files and folders within the configured repository root. Parameters: path (string, optional) - relative path from the repository root.",
	}, mcpServer.listDirectoryTool)

	// 注册工具：derive_project_idea
	mcp.AddTool(server, &mcp.Tool{
		Name:        "derive_project_idea",
		Description: "Analyze chat history to derive and save a project idea artifact. Parameters: session_id (string, required).",
	}, mcpServer.deriveProjectIdeaTool)

	// 注册工具：create_tech_stack
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_tech_stack",
		Description: "Analyze chat history to create and save a recommended tech stack artifact. Parameters: session_id (string, required).",
	}, mcpServer.createTechStackTool)

	// 注册工具：summarize_chat_history
	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_chat_history",
		Description: "Summarize the chat history into a submission-summary artifact. Parameters: session_id (string, required).",
	}, mcpServer.summarizeChatHistoryTool)

	// 注册工具：generate_chat_title
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_chat_title",
		Description: "Create and save a concise chat title from recent conversation. Parameters: session_id (string, required), force (bool, optional).",
	}, mcpServer.generateChatTitleTool)

	// 创建 SSE Handler
	handler := mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			// 每个请求返回同一个服务器实例
			return server
		},
		nil, // SSEOptions，使用默认值
	)

	mcpServer.handler = handler
	return mcpServer
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}

// execute 经由注册表执行，复用 HTTP 路径的全部校验与超时
func (s *MCPServer) execute(ctx context.Context, name, arguments, sessionID string) tools.Result {
	return s.registry.Execute(ctx, tools.Call{Name: name, Arguments: arguments}, sessionID)
}
