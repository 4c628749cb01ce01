package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/hackhero/backend/internal/infrastructure/log"
	"github.com/hackhero/backend/internal/infrastructure/websocket"
)

// WSHandler WebSocket 推送端点
// 客户端可带 session_id 订阅单个会话，缺省订阅全部
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 本地单机服务，跨源检查放开
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.NewModuleLogger("http", "ws"),
	}
}

// Serve 升级连接并转发推送
func (h *WSHandler) Serve(c *gin.Context) {
	sessionID := c.Query("session_id")

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	conn := &websocket.Connection{
		SessionID: sessionID,
		Send:      make(chan []byte, 16),
	}
	h.hub.Register(conn)

	// 读泵：仅消费控制帧，感知断开
	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 写泵
	defer func() { _ = ws.Close() }()
	for data := range conn.Send {
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteMessage(gorilla.TextMessage, data); err != nil {
			return
		}
	}
}
