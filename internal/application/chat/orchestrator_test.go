package chat

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifactApp "github.com/hackhero/backend/internal/application/artifact"
	toolsApp "github.com/hackhero/backend/internal/application/tools"
	domainChat "github.com/hackhero/backend/internal/domain/chat"
	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/domain/todo"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/storage"
)

// scriptedStreamer 按轮脚本化的 provider 替身
type scriptedStreamer struct {
	rounds [][]llm.Frame
	calls  int
	gate   chan struct{} // 非 nil 时每轮开始前等待放行
}

func (s *scriptedStreamer) StreamChat(ctx context.Context, model string, messages []llm.ChatMessage, tools []llm.ToolSchema) (<-chan llm.Frame, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var frames []llm.Frame
	if s.calls < len(s.rounds) {
		frames = s.rounds[s.calls]
	} else {
		frames = []llm.Frame{{Type: llm.FrameDone, FinishReason: "stop"}}
	}
	s.calls++

	ch := make(chan llm.Frame, len(frames)+1)
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch, nil
}

// stubCompleter 标题生成替身
type stubCompleter struct{}

func (stubCompleter) Complete(ctx context.Context, model string, messages []llm.ChatMessage) (string, error) {
	return "Stub Session Title", nil
}

// stubModels 模型选择替身
type stubModels struct{}

func (stubModels) CurrentModel() string { return "test-model" }

// stubRetriever 检索替身
type stubRetriever struct {
	hits []domainRAG.RetrievedChunk
}

func (s *stubRetriever) Retrieve(ctx context.Context, sessionID, query string, k int) ([]domainRAG.RetrievedChunk, bool, error) {
	return s.hits, len(s.hits) > 0, nil
}

func (s *stubRetriever) Status(sessionID string) domainRAG.Status {
	return domainRAG.Status{Ready: len(s.hits) > 0, NChunks: len(s.hits)}
}

func (s *stubRetriever) Invalidate(sessionID string) {}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	sessions     domainChat.SessionRepository
	messages     domainChat.MessageRepository
	todos        todo.Repository
	streamer     *scriptedStreamer
}

func setupOrchestrator(t *testing.T, streamer *scriptedStreamer, retriever domainRAG.Retriever, mutate func(*config.Config)) *orchestratorFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.OpenDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(db, ""))
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.NewConfig()
	cfg.Chat.HistoryTokenBudget = 0 // 测试中不触发裁剪
	if mutate != nil {
		mutate(cfg)
	}

	sessions := storage.NewSessionRepository(db)
	messages := storage.NewMessageRepository(db, sessions)
	todos := storage.NewTodoRepository(db)
	artifacts := storage.NewArtifactRepository(db)

	artifactSvc := artifactApp.NewService(sessions, messages, artifacts, streamer, stubModels{})
	titles := toolsApp.NewTitleService(sessions, messages, stubCompleter{}, stubModels{})
	registry := toolsApp.NewRegistry(cfg, todos, artifactSvc, titles)

	if retriever == nil {
		retriever = &stubRetriever{}
	}

	orchestrator := NewOrchestrator(cfg, sessions, messages, retriever, registry, streamer, stubModels{}, titles)
	return &orchestratorFixture{
		orchestrator: orchestrator,
		sessions:     sessions,
		messages:     messages,
		todos:        todos,
		streamer:     streamer,
	}
}

// drain 读完事件流
func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not finish")
		}
	}
}

// assertGrammar 校验事件文法：session_info rule_chunks (thinking|tool_calls)* token* end
func assertGrammar(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	require.Equal(t, EventSessionInfo, events[0].Type, "first event must be session_info")
	require.Equal(t, EventRuleChunks, events[1].Type, "second event must be rule_chunks")
	require.Equal(t, EventEnd, events[len(events)-1].Type, "last event must be end")

	counts := map[EventType]int{}
	for _, ev := range events {
		counts[ev.Type]++
	}
	assert.Equal(t, 1, counts[EventSessionInfo])
	assert.Equal(t, 1, counts[EventRuleChunks])
	assert.Equal(t, 1, counts[EventEnd])

	state := 0 // 0: 前奏, 1: thinking/tool_calls, 2: token
	for _, ev := range events[2 : len(events)-1] {
		switch ev.Type {
		case EventThinking, EventToolCalls:
			require.LessOrEqual(t, state, 1, "thinking/tool_calls after token violates grammar")
			state = 1
		case EventToken:
			state = 2
		default:
			t.Fatalf("unexpected event type %s inside turn body", ev.Type)
		}
	}
}

func TestOrchestrator_SimpleTurn(t *testing.T) {
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameContent, Content: "Hello"},
			{Type: llm.FrameContent, Content: " there"},
			{Type: llm.FrameDone, FinishReason: "stop"},
		},
	}}
	fx := setupOrchestrator(t, streamer, nil, nil)

	events, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	got := drain(t, events)
	assertGrammar(t, got)

	last := got[len(got)-1]
	assert.Equal(t, EndReasonComplete, last.Reason)
	assert.Empty(t, last.Error)

	// 库里应有一条用户消息与一条完整的助手消息
	msgs, err := fx.messages.List(sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domainChat.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, domainChat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there", msgs[1].Content)
}

func TestOrchestrator_RuleChunksEmitted(t *testing.T) {
	retriever := &stubRetriever{hits: []domainRAG.RetrievedChunk{
		{ChunkID: 0, Text: "Teams may have up to 4 members.", Score: 0.83},
	}}
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameContent, Content: "Up to 4."},
			{Type: llm.FrameDone, FinishReason: "stop"},
		},
	}}
	fx := setupOrchestrator(t, streamer, retriever, nil)

	events, _, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "team size?"})
	require.NoError(t, err)

	got := drain(t, events)
	assertGrammar(t, got)

	ruleChunks := got[1]
	require.Len(t, ruleChunks.Texts, 1)
	assert.Contains(t, ruleChunks.Texts[0], "4 members")
	assert.Equal(t, []int{0}, ruleChunks.ChunkIDs)
}

func TestOrchestrator_MultiRoundToolUse(t *testing.T) {
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameThinking, Content: "the user wants a task"},
			{Type: llm.FrameToolCall, ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "add_todo", Arguments: `{"item":"design schema"}`},
			}},
			{Type: llm.FrameDone, FinishReason: "tool_calls"},
		},
		{
			{Type: llm.FrameContent, Content: "Added the task."},
			{Type: llm.FrameDone, FinishReason: "stop"},
		},
	}}
	fx := setupOrchestrator(t, streamer, nil, nil)

	events, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "add a todo to design the schema"})
	require.NoError(t, err)

	got := drain(t, events)
	assertGrammar(t, got)

	// 恰好一个 tool_calls 帧，且在执行前公布
	var toolFrames []Event
	for _, ev := range got {
		if ev.Type == EventToolCalls {
			toolFrames = append(toolFrames, ev)
		}
	}
	require.Len(t, toolFrames, 1)
	require.Len(t, toolFrames[0].ToolCalls, 1)
	assert.Equal(t, "add_todo", toolFrames[0].ToolCalls[0].Name)

	// 工具确实执行：库里出现任务
	items, err := fx.todos.List(sessionID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "design schema", items[0].Item)

	// 最终助手内容非空，且元数据记录了已执行的调用
	msgs, err := fx.messages.List(sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Added the task.", msgs[1].Content)
	require.NotNil(t, msgs[1].Metadata)
	require.Len(t, msgs[1].Metadata.ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[1].Metadata.ToolCalls[0].ID)
}

func TestOrchestrator_ContentBeforeToolCallKeepsGrammar(t *testing.T) {
	// provider 在同一轮里先给正文前导再调工具：token 不得先于 tool_calls 出现
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameContent, Content: "Let me add that task. "},
			{Type: llm.FrameToolCall, ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "add_todo", Arguments: `{"item":"ship it"}`},
			}},
			{Type: llm.FrameDone, FinishReason: "tool_calls"},
		},
		{
			{Type: llm.FrameContent, Content: "Done."},
			{Type: llm.FrameDone, FinishReason: "stop"},
		},
	}}
	fx := setupOrchestrator(t, streamer, nil, nil)

	events, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "add a task"})
	require.NoError(t, err)

	got := drain(t, events)
	assertGrammar(t, got)

	// 工具轮的正文归入 thinking，token 只来自收尾轮
	var tokens []string
	for _, ev := range got {
		if ev.Type == EventToken {
			tokens = append(tokens, ev.Token)
		}
	}
	assert.Equal(t, []string{"Done."}, tokens)

	msgs, err := fx.messages.List(sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Done.", msgs[1].Content)
	require.NotNil(t, msgs[1].Metadata)
	assert.Contains(t, msgs[1].Metadata.Thinking, "Let me add that task.")
}

func TestOrchestrator_RepeatedToolCallIDNotReexecuted(t *testing.T) {
	call := llm.ToolCall{ID: "call_dup", Name: "add_todo", Arguments: `{"item":"once"}`}
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameToolCall, ToolCalls: []llm.ToolCall{call}},
			{Type: llm.FrameDone, FinishReason: "tool_calls"},
		},
		{
			// provider 重复同一 ID：不得再次执行
			{Type: llm.FrameToolCall, ToolCalls: []llm.ToolCall{call}},
			{Type: llm.FrameDone, FinishReason: "tool_calls"},
		},
	}}
	fx := setupOrchestrator(t, streamer, nil, nil)

	events, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "add"})
	require.NoError(t, err)
	drain(t, events)

	items, err := fx.todos.List(sessionID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestOrchestrator_ToolCallBudget(t *testing.T) {
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameToolCall, ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "add_todo", Arguments: `{"item":"one"}`},
				{ID: "c2", Name: "add_todo", Arguments: `{"item":"two"}`},
				{ID: "c3", Name: "add_todo", Arguments: `{"item":"three"}`},
			}},
			{Type: llm.FrameDone, FinishReason: "tool_calls"},
		},
	}}
	fx := setupOrchestrator(t, streamer, nil, func(cfg *config.Config) {
		cfg.Chat.MaxTotalToolCalls = 2
	})

	events, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "add three"})
	require.NoError(t, err)
	got := drain(t, events)

	last := got[len(got)-1]
	assert.Equal(t, EndReasonMaxRounds, last.Reason)

	// 预算内的调用执行，超出的不执行
	items, err := fx.todos.List(sessionID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// 预算耗尽时有一个说明性 token
	var sawNotice bool
	for _, ev := range got {
		if ev.Type == EventToken && ev.Token == "[tool call budget exhausted]" {
			sawNotice = true
		}
	}
	assert.True(t, sawNotice)
}

func TestOrchestrator_ProviderErrorEndsWithError(t *testing.T) {
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{
			{Type: llm.FrameError, Err: context.DeadlineExceeded},
		},
	}}
	fx := setupOrchestrator(t, streamer, nil, nil)

	events, _, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{UserInput: "hi"})
	require.NoError(t, err)
	got := drain(t, events)

	last := got[len(got)-1]
	assert.Equal(t, EventEnd, last.Type)
	assert.Equal(t, EndReasonError, last.Reason)
	assert.NotEmpty(t, last.Error)
}

func TestOrchestrator_SameSessionSerialized(t *testing.T) {
	gate := make(chan struct{})
	streamer := &scriptedStreamer{
		gate: gate,
		rounds: [][]llm.Frame{
			{{Type: llm.FrameContent, Content: "first"}, {Type: llm.FrameDone}},
			{{Type: llm.FrameContent, Content: "second"}, {Type: llm.FrameDone}},
		},
	}
	fx := setupOrchestrator(t, streamer, nil, nil)

	eventsA, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{SessionID: "shared", UserInput: "one"})
	require.NoError(t, err)
	require.Equal(t, "shared", sessionID)

	// 第二个回合必须等第一个发出 end 之后才开始
	secondStarted := make(chan []Event, 1)
	go func() {
		eventsB, _, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{SessionID: "shared", UserInput: "two"})
		if err != nil {
			secondStarted <- nil
			return
		}
		secondStarted <- drain(t, eventsB)
	}()

	select {
	case <-secondStarted:
		t.Fatal("second turn started before the first finished")
	case <-time.After(150 * time.Millisecond):
	}

	// 放行两轮
	close(gate)
	gotA := drain(t, eventsA)
	assertGrammar(t, gotA)

	gotB := <-secondStarted
	require.NotNil(t, gotB)
	assertGrammar(t, gotB)

	// 两个回合的消息序列不交错：user/assistant 成对出现
	msgs, err := fx.messages.List("shared", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, domainChat.RoleUser, msgs[0].Role)
	assert.Equal(t, domainChat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, domainChat.RoleUser, msgs[2].Role)
	assert.Equal(t, domainChat.RoleAssistant, msgs[3].Role)
}

func TestOrchestrator_ContextBlocksStrippedFromStoredMessage(t *testing.T) {
	streamer := &scriptedStreamer{rounds: [][]llm.Frame{
		{{Type: llm.FrameContent, Content: "ok"}, {Type: llm.FrameDone}},
	}}
	fx := setupOrchestrator(t, streamer, nil, nil)

	events, sessionID, err := fx.orchestrator.StreamTurn(context.Background(), TurnRequest{
		UserInput:     "summarize the rules",
		ContextBlocks: []string{"[FILE:rules.txt]\nTeams may have up to 4 members.\n[/FILE]"},
	})
	require.NoError(t, err)
	drain(t, events)

	msgs, err := fx.messages.List(sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	// 落库的用户消息不含上下文块
	assert.Equal(t, "summarize the rules", msgs[0].Content)
}
