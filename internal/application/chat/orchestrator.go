package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackhero/backend/internal/application/tools"
	domainChat "github.com/hackhero/backend/internal/domain/chat"
	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/llm"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// Orchestrator 流式聊天编排器
// 驱动一次回合：取历史、检索规则、多轮工具调用循环、事件流输出、落库。
// 跨会话并行，同会话串行；事件经有界通道交给传输层，写出端是背压源头
type Orchestrator struct {
	sessions domainChat.SessionRepository
	messages domainChat.MessageRepository
	index    domainRAG.Retriever
	registry *tools.Registry
	provider llm.Streamer
	models   llm.ModelSelector
	titles   *tools.TitleService

	maxToolRounds     int
	maxTotalToolCalls int
	queueSize         int
	turnTimeout       time.Duration
	topK              int
	tokenBudget       int

	locks  *sessionLocks
	logger *slog.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	cfg *config.Config,
	sessions domainChat.SessionRepository,
	messages domainChat.MessageRepository,
	index domainRAG.Retriever,
	registry *tools.Registry,
	provider llm.Streamer,
	models llm.ModelSelector,
	titles *tools.TitleService,
) *Orchestrator {
	return &Orchestrator{
		sessions:          sessions,
		messages:          messages,
		index:             index,
		registry:          registry,
		provider:          provider,
		models:            models,
		titles:            titles,
		maxToolRounds:     cfg.Chat.MaxToolRounds,
		maxTotalToolCalls: cfg.Chat.MaxTotalToolCalls,
		queueSize:         cfg.Chat.EventQueueSize,
		turnTimeout:       cfg.Chat.TurnTimeout,
		topK:              cfg.Chat.RetrieveTopK,
		tokenBudget:       cfg.Chat.HistoryTokenBudget,
		locks:             newSessionLocks(),
		logger:            log.NewModuleLogger("chat", "orchestrator"),
	}
}

// TurnRequest 一次回合的输入
type TurnRequest struct {
	SessionID     string
	UserInput     string
	ContextBlocks []string                    // 预先构建好的 [FILE:…]/[URL:…] 上下文块
	Metadata      *domainChat.MessageMetadata // 用户消息元数据（文件、URL 引用）
}

// StreamTurn 执行一次回合，事件经返回的通道流出
// 通道在 end 事件后关闭；ctx 取消则协作式中止
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest) (<-chan Event, string, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	// 同会话串行：等待上一回合结束或被取消
	release, err := o.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, sessionID, err
	}

	if _, err := o.sessions.Upsert(sessionID, ""); err != nil {
		release()
		return nil, sessionID, err
	}

	// 发送给模型的内容带上下文块；落库的内容剥离
	parts := append(append([]string{}, req.ContextBlocks...), req.UserInput)
	userContent := strings.Join(parts, "\n")
	savedContent := StripContextBlocks(userContent)
	if savedContent == "" {
		savedContent = req.UserInput
	}

	if _, err := o.messages.Append(sessionID, domainChat.RoleUser, savedContent, req.Metadata); err != nil {
		release()
		return nil, sessionID, err
	}

	events := make(chan Event, o.queueSize)
	go func() {
		defer release()
		defer close(events)
		o.runTurn(ctx, events, sessionID, userContent, req.UserInput)
	}()

	return events, sessionID, nil
}

// runTurn 回合主循环
func (o *Orchestrator) runTurn(ctx context.Context, events chan<- Event, sessionID, userContent, userInput string) {
	turnCtx := ctx
	if o.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, o.turnTimeout)
		defer cancel()
	}

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		contentParts  []string
		thinkingParts []string
		executedCalls []domainChat.ToolCallRecord
	)
	tokensEmitted := false

	// 落库规则：取消时只有已发出过正文 token 才持久化（partial）
	persist := func(partial bool) {
		content := StripContextBlocks(strings.Join(contentParts, ""))
		if strings.TrimSpace(content) == "" && len(executedCalls) == 0 {
			return
		}
		meta := &domainChat.MessageMetadata{
			Thinking:  strings.TrimSpace(strings.Join(thinkingParts, "")),
			ToolCalls: executedCalls,
			Partial:   partial,
		}
		if meta.Thinking == "" && len(meta.ToolCalls) == 0 && !partial {
			meta = nil
		}
		if _, err := o.messages.Append(sessionID, domainChat.RoleAssistant, content, meta); err != nil {
			o.logger.Error("Failed to persist assistant message",
				"session_id", sessionID,
				"error", err,
			)
		}
	}

	finish := func(reason, errMsg string) {
		emit(Event{Type: EventEnd, Reason: reason, Error: errMsg})
		o.ensureTitle(sessionID)
	}

	if !emit(Event{Type: EventSessionInfo, SessionID: sessionID}) {
		return
	}

	// 检索规则片段；未就绪时带空列表继续
	hits, _, err := o.index.Retrieve(turnCtx, sessionID, userInput, o.topK)
	if err != nil {
		o.logger.Warn("Rule retrieval failed, continuing without chunks",
			"session_id", sessionID,
			"error", err,
		)
		hits = nil
	}
	chunkIDs := make([]int, 0, len(hits))
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		chunkIDs = append(chunkIDs, h.ChunkID)
		texts = append(texts, h.Text)
	}
	if !emit(Event{Type: EventRuleChunks, ChunkIDs: chunkIDs, Texts: texts}) {
		return
	}

	// 历史不含刚写入的用户消息（它以 userContent 形式重新附加）
	history, err := o.messages.List(sessionID, 0, 0)
	if err != nil {
		finish(EndReasonError, err.Error())
		return
	}
	if n := len(history); n > 0 && history[n-1].Role == domainChat.RoleUser {
		history = history[:n-1]
	}
	history = truncateHistory(history, o.tokenBudget)

	systemPrompt := BuildSystemPrompt(hits)
	messages := buildMessages(systemPrompt, history, userContent)
	schemas := o.registry.Schemas()

	executedIDs := make(map[string]bool)
	totalCalls := 0

	// 第 maxToolRounds+1 轮是强制的纯内容收尾轮，不再提供工具
	for round := 1; round <= o.maxToolRounds+1; round++ {
		roundTools := schemas
		if round == o.maxToolRounds+1 {
			roundTools = nil
		}

		frames, err := o.provider.StreamChat(turnCtx, o.models.CurrentModel(), messages, roundTools)
		if err != nil {
			persist(false)
			finish(EndReasonError, err.Error())
			return
		}

		// 工具调用增量在流结束时才组装完成，而 token 一旦发出就无法收回；
		// 本轮正文先暂存，确认整轮无工具调用后才作为 token 流出，
		// 保证 token 永远不会先于同轮的 tool_calls 出现
		var roundCalls []llm.ToolCall
		var roundContent []string
		streamErr := ""
		for frame := range frames {
			switch frame.Type {
			case llm.FrameThinking:
				thinkingParts = append(thinkingParts, frame.Content)
				if !emit(Event{Type: EventThinking, Content: frame.Content}) {
					o.handleCancel(persist, tokensEmitted)
					return
				}
			case llm.FrameContent:
				roundContent = append(roundContent, frame.Content)
			case llm.FrameToolCall:
				roundCalls = frame.ToolCalls
			case llm.FrameError:
				if frame.Err != nil {
					streamErr = frame.Err.Error()
				} else {
					streamErr = "provider stream failed"
				}
			}
		}
		if ctx.Err() != nil {
			o.handleCancel(persist, tokensEmitted)
			return
		}
		if streamErr != "" {
			// 暂存的本轮正文从未对外发出，出错即丢弃
			persist(false)
			finish(EndReasonError, streamErr)
			return
		}

		if len(roundCalls) == 0 {
			// 无工具请求：本轮正文整体作为 token 流出，回合正常结束
			for _, piece := range roundContent {
				contentParts = append(contentParts, piece)
				tokensEmitted = true
				if !emit(Event{Type: EventToken, Token: piece}) {
					o.handleCancel(persist, tokensEmitted)
					return
				}
			}
			persist(false)
			finish(EndReasonComplete, "")
			return
		}

		// 有工具调用的轮次不得产生 token：模型的正文前导归入 thinking
		for _, piece := range roundContent {
			thinkingParts = append(thinkingParts, piece)
			if !emit(Event{Type: EventThinking, Content: piece}) {
				o.handleCancel(persist, tokensEmitted)
				return
			}
		}

		// 同一 ID 的调用一回合内只执行一次
		fresh := make([]llm.ToolCall, 0, len(roundCalls))
		for _, tc := range roundCalls {
			if !executedIDs[tc.ID] {
				fresh = append(fresh, tc)
			}
		}
		if len(fresh) == 0 {
			o.logger.Warn("Provider repeated already-executed tool calls, ending turn",
				"session_id", sessionID,
			)
			persist(false)
			finish(EndReasonComplete, "")
			return
		}

		if round == o.maxToolRounds+1 {
			// 收尾轮理应无工具可用；防御 provider 无视 tools 缺省
			persist(false)
			finish(EndReasonMaxRounds, "")
			return
		}

		// 执行前公布本轮调用
		infos := make([]ToolCallInfo, 0, len(fresh))
		payloads := make([]llm.ToolCallPayload, 0, len(fresh))
		for _, tc := range fresh {
			infos = append(infos, ToolCallInfo{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			payloads = append(payloads, llm.ToolCallPayload{
				ID:   tc.ID,
				Type: "function",
				Function: llm.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if !emit(Event{Type: EventToolCalls, ToolCalls: infos}) {
			o.handleCancel(persist, tokensEmitted)
			return
		}

		messages = append(messages, llm.ChatMessage{
			Role:      domainChat.RoleAssistant,
			ToolCalls: payloads,
		})

		budgetExhausted := false
		for _, tc := range fresh {
			if totalCalls >= o.maxTotalToolCalls {
				budgetExhausted = true
				break
			}

			result := o.registry.Execute(turnCtx, tools.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}, sessionID)
			totalCalls++
			executedIDs[tc.ID] = true
			executedCalls = append(executedCalls, domainChat.ToolCallRecord{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})

			resultJSON, err := json.Marshal(result)
			if err != nil {
				resultJSON = []byte(`{"ok":false,"error":"failed to encode tool result"}`)
			}
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    string(resultJSON),
			})

			if ctx.Err() != nil {
				o.handleCancel(persist, tokensEmitted)
				return
			}
		}

		if budgetExhausted {
			const notice = "[tool call budget exhausted]"
			contentParts = append(contentParts, notice)
			tokensEmitted = true
			emit(Event{Type: EventToken, Token: notice})
			persist(false)
			finish(EndReasonMaxRounds, "")
			return
		}
	}

	// 循环耗尽所有轮次
	persist(false)
	finish(EndReasonMaxRounds, "")
}

// handleCancel 客户端断开后的清理
// 至少发出过一个正文 token 才持久化部分消息（metadata.partial=true）
func (o *Orchestrator) handleCancel(persist func(partial bool), tokensEmitted bool) {
	o.logger.Info("Turn cancelled by client")
	if tokensEmitted {
		persist(true)
	}
}

// ensureTitle 回合结束后若会话仍无标题，后台生成一次
func (o *Orchestrator) ensureTitle(sessionID string) {
	session, err := o.sessions.Get(sessionID)
	if err != nil || session.HasTitle() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := o.titles.Generate(ctx, sessionID, false); err != nil {
			o.logger.Debug("Background title generation failed",
				"session_id", sessionID,
				"error", err,
			)
		}
	}()
}
