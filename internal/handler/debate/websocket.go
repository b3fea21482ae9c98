package debate

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/debate-arena/backend/internal/service/broadcast"
)

// Options tunes the client socket.
type Options struct {
	SendBuffer   int           // 每个连接的发送队列长度
	ReadLimit    int64         // 单帧最大字节数
	PingPeriod   time.Duration // ping 间隔
	PongWait     time.Duration // 等待 pong 的超时时间
	WriteTimeout time.Duration
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		SendBuffer:   64,
		ReadLimit:    1 << 20,
		PingPeriod:   54 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WebSocketHandler WebSocket 实时事件处理器
type WebSocketHandler struct {
	dispatcher *Dispatcher
	hub        *broadcast.Hub
	options    Options
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(dispatcher *Dispatcher, hub *broadcast.Hub, options Options) *WebSocketHandler {
	defaults := DefaultOptions()
	if options.SendBuffer <= 0 {
		options.SendBuffer = defaults.SendBuffer
	}
	if options.PongWait <= 0 {
		options.PongWait = defaults.PongWait
	}
	if options.PingPeriod <= 0 || options.PingPeriod >= options.PongWait {
		options.PingPeriod = options.PongWait * 9 / 10
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaults.WriteTimeout
	}

	return &WebSocketHandler{
		dispatcher: dispatcher,
		hub:        hub,
		options:    options,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("module", "handler.debate").Err(err).Msg("websocket upgrade failed")
		return
	}

	participantID := uuid.NewString()
	client := broadcast.NewClient(participantID, h.options.SendBuffer)
	h.hub.Register(client)
	log.Info().Str("module", "handler.debate").Str("participant", participantID).Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, conn, client)
	}()

	h.readPump(ctx, conn, participantID)

	cancel()
	h.dispatcher.Disconnect(participantID)
	h.hub.Unregister(client)
	<-done
	_ = conn.Close()
	log.Info().Str("module", "handler.debate").Str("participant", participantID).Msg("client closed")
}

func (h *WebSocketHandler) readPump(ctx context.Context, conn *websocket.Conn, participantID string) {
	if h.options.ReadLimit > 0 {
		conn.SetReadLimit(h.options.ReadLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.options.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.options.PongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Str("module", "handler.debate").Str("participant", participantID).Err(err).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.options.PongWait))

		switch msgType {
		case websocket.TextMessage:
			h.dispatcher.Handle(ctx, participantID, data)
		case websocket.BinaryMessage:
			h.dispatcher.RelayBinary(participantID, data)
		}
	}
}

// writePump drains the client's queue and sends pings. It owns every write
// on the connection.
func (h *WebSocketHandler) writePump(ctx context.Context, conn *websocket.Conn, client *broadcast.Client) {
	ticker := time.NewTicker(h.options.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case frame, ok := <-client.Frames():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.options.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Str("module", "handler.debate").Str("participant", client.ID).Err(err).Msg("write failed")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.options.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
