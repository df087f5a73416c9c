package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"checkmate/internal/registry"
	"checkmate/internal/router"
)

const (
	handshakeTimeout = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
	pingWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: handshakeTimeout,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin enforcement happens at the reverse proxy.
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket sessions and runs the read
// loop for each. Connections arrive anonymous; identity and subscriptions
// are established in-band through control messages.
type Handler struct {
	registry *registry.Registry
	router   *router.Router
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(reg *registry.Registry, rtr *router.Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: reg,
		router:   rtr,
		logger:   logger,
	}
}

// ServeHTTP upgrades the request and registers the resulting connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := registry.NewConnection(wsConn, h.logger)
	h.registry.Register(conn)

	go h.readLoop(wsConn, conn)
}

// readLoop consumes inbound frames until the transport drops, then reaps the
// connection. Each frame is handled to completion before the next one, so a
// connection's own state is never mutated concurrently by its own messages.
func (h *Handler) readLoop(wsConn *websocket.Conn, conn *registry.Connection) {
	defer func() {
		h.registry.Unregister(conn)
		h.router.Release(conn)
		_ = conn.Close()
	}()

	// Transport-level liveness: a peer that stops answering pings is closed
	// by the read deadline. Protocol-level ping stays a pure echo.
	if err := wsConn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Warn("set read deadline failed", zap.Error(err))
		return
	}
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := wsConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.router.HandleInbound(conn, data)
	}
}
