package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hlsarchiver/internal/infrastructure/distributed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSHandler fans chunk lifecycle events arriving over a FeedEventBus
// subscription out to every currently-connected websocket client, so a
// player-side UI can react to a chunk closing without polling the
// manifest endpoints.
type WSHandler struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewWSHandler builds a WSHandler.
func NewWSHandler(log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		log:   log,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the connection and keeps it registered for
// broadcast until the client disconnects or sends anything that errors
// the read loop (this endpoint is publish-only; client frames are
// discarded).
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast fans event out to every connected client. Intended as the
// handler passed to FeedEventBus.Subscribe.
func (h *WSHandler) Broadcast(event *distributed.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			h.log.Debug("dropping unresponsive websocket client", zap.Error(err))
			conn.Close()
		}
	}
}

// ConnectedClients reports how many websocket clients are currently
// registered for broadcast.
func (h *WSHandler) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
