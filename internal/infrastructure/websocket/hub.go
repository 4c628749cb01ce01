package websocket

import (
	"encoding/json"
	"sync"

	domainRAG "github.com/hackhero/backend/internal/domain/rag"
)

// Hub WebSocket 连接管理中心
// 按会话分组推送（索引状态、待办变化）；慢消费者直接丢弃而不阻塞生产方
type Hub struct {
	// 按会话 ID 分组的连接，"" 组接收全部会话的消息
	sessions map[string]map[*Connection]bool
	// 注册连接
	register chan *Connection
	// 注销连接
	unregister chan *Connection
	// 广播消息
	broadcast chan *Message
	mu        sync.RWMutex
}

// Connection WebSocket 连接
type Connection struct {
	SessionID string
	Send      chan []byte
}

// Message 消息
type Message struct {
	SessionID string
	Data      []byte
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Message, 64),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[*Connection]bool)
			}
			h.sessions[conn.SessionID][conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if group, ok := h.sessions[conn.SessionID]; ok {
				if _, ok := group[conn]; ok {
					delete(group, conn)
					close(conn.Send)
					if len(group) == 0 {
						delete(h.sessions, conn.SessionID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			h.deliver(h.sessions[msg.SessionID], msg.Data)
			if msg.SessionID != "" {
				h.deliver(h.sessions[""], msg.Data)
			}
			h.mu.RUnlock()
		}
	}
}

// deliver 投递到一组连接，写不进去的连接视为慢消费者丢弃消息
func (h *Hub) deliver(group map[*Connection]bool, data []byte) {
	for conn := range group {
		select {
		case conn.Send <- data:
		default:
		}
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Register 注册连接
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister 注销连接
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Publish 向指定会话的订阅者推送消息
func (h *Hub) Publish(sessionID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &Message{SessionID: sessionID, Data: data}:
	default:
		// 广播队列满时丢弃，推送是尽力而为的
	}
	return nil
}

// PublishContextStatus 推送索引状态变化
func (h *Hub) PublishContextStatus(sessionID string, status domainRAG.Status) {
	_ = h.Publish(sessionID, map[string]any{
		"type":       "context_status",
		"session_id": sessionID,
		"status":     status,
	})
}

// PublishTodosChanged 推送待办变化
func (h *Hub) PublishTodosChanged(sessionID string) {
	_ = h.Publish(sessionID, map[string]any{
		"type":       "todos_changed",
		"session_id": sessionID,
	})
}
