// Package client is the Go connection manager for the real-time layer: it
// owns one logical WebSocket connection, performs the auth/subscribe
// handshake on open, and reconnects with a fixed delay when the connection
// drops. Inbound events feed an optional callback and the cache-invalidation
// dispatcher, independently of each other.
package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"checkmate/internal/event"
)

const (
	// DefaultReconnectInterval matches the browser client's fixed delay.
	DefaultReconnectInterval = 3 * time.Second

	clientWriteTimeout = 10 * time.Second
)

// Identity is the authenticated user the manager announces on open. Supplied
// by the session layer; the server performs no independent verification.
type Identity struct {
	UserID string
	Role   event.Role
}

// Config configures a Manager.
type Config struct {
	// ServerURL is the http(s) origin of the server; the scheme is mapped
	// to ws(s) and the fixed /ws path appended.
	ServerURL string

	// Identity, when set, is sent as an auth message on every (re)connect.
	Identity *Identity

	// Courses are subscribed on every (re)connect, in the order given.
	Courses []string

	// OnEvent, when set, receives every parsed inbound envelope before the
	// dispatcher runs.
	OnEvent func(*event.Envelope)

	// Cache receives invalidations derived from inbound events. Nil disables
	// dispatch.
	Cache Invalidator

	// ReconnectInterval is the fixed delay between a close and the next
	// connection attempt. Zero means DefaultReconnectInterval.
	ReconnectInterval time.Duration

	Logger *zap.Logger
	Dialer *websocket.Dialer
}

// Manager owns exactly one logical connection attempt at a time.
type Manager struct {
	cfg        Config
	wsURL      string
	dialer     *websocket.Dialer
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	dialing        bool
	closed         bool
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

// NewManager validates the configuration and builds a manager. It does not
// connect; call Connect.
func NewManager(cfg Config) (*Manager, error) {
	wsURL, err := deriveEndpoint(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Manager{
		cfg:        cfg,
		wsURL:      wsURL,
		dialer:     dialer,
		dispatcher: NewDispatcher(cfg.Cache, logger),
		logger:     logger,
	}, nil
}

// deriveEndpoint maps the server origin to the duplex endpoint:
// http -> ws, https -> wss, fixed /ws path.
func deriveEndpoint(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Connect opens the connection and performs the handshake. It is a no-op when
// a connection is already open or another attempt is in flight.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.connected || m.dialing {
		m.mu.Unlock()
		return nil
	}
	m.dialing = true
	m.mu.Unlock()

	conn, _, err := m.dialer.Dial(m.wsURL, nil)

	m.mu.Lock()
	m.dialing = false
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("connection attempt failed", zap.Error(err))
		return fmt.Errorf("dial %s: %w", m.wsURL, err)
	}
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrManagerClosed
	}
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("url", m.wsURL))
	m.handshake()
	go m.readLoop(conn)
	return nil
}

// handshake announces identity first, then subscriptions in configured order.
func (m *Manager) handshake() {
	if id := m.cfg.Identity; id != nil {
		if err := m.Send(&event.Envelope{Type: event.TypeAuth, UserID: id.UserID, UserRole: id.Role}); err != nil {
			m.logger.Warn("auth handshake failed", zap.Error(err))
		}
	}
	for _, courseID := range m.cfg.Courses {
		if err := m.Send(&event.Envelope{Type: event.TypeSubscribeCourse, CourseID: courseID}); err != nil {
			m.logger.Warn("subscribe handshake failed",
				zap.String("course_id", courseID), zap.Error(err))
		}
	}
}

// Send serializes and sends one envelope if the connection is open. When
// disconnected the payload is dropped with a warning; nothing is queued.
func (m *Manager) Send(env *event.Envelope) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Warn("send dropped: not connected", zap.String("type", env.Type))
		return ErrNotConnected
	}

	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// Connected reports whether the connection is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// readLoop parses inbound frames until the transport drops, then schedules a
// reconnect. A parse failure drops the message and keeps reading.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Transport errors are always followed by closure; the close
			// path below drives reconnection.
			break
		}

		env, err := event.Decode(raw)
		if err != nil {
			m.logger.Warn("malformed inbound message dropped", zap.Error(err))
			continue
		}

		if m.cfg.OnEvent != nil {
			m.cfg.OnEvent(env)
		}
		m.dispatcher.Dispatch(env)
	}
	m.handleClose(conn)
}

// handleClose marks the manager disconnected and schedules exactly one
// reconnect attempt. A close arriving while a timer is already pending does
// not schedule a second one.
func (m *Manager) handleClose(conn *websocket.Conn) {
	_ = conn.Close()

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.connected = false
	}
	if m.closed || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectInterval, m.retry)
	m.mu.Unlock()

	m.logger.Info("connection lost, reconnect scheduled",
		zap.Duration("delay", m.cfg.ReconnectInterval))
}

// retry runs when the reconnect timer fires. A failed dial produces no close
// event, so it reschedules itself until Close or success.
func (m *Manager) retry() {
	m.mu.Lock()
	m.reconnectTimer = nil
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	if err := m.Connect(); err != nil {
		m.mu.Lock()
		if !m.closed && m.reconnectTimer == nil {
			m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectInterval, m.retry)
		}
		m.mu.Unlock()
	}
}

// Close disposes the manager: it cancels any pending reconnect, closes the
// live connection, and guarantees no further attempt is made. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}
