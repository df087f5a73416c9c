package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"checkmate/internal/event"
)

const (
	writeTimeout   = 5 * time.Second
	sendBufferSize = 100
)

// Transport is the write side of a duplex connection. *websocket.Conn
// satisfies it; tests substitute a recording fake.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection wraps one live duplex session. All writes funnel through a
// single writer goroutine so concurrent broadcasts never interleave frames.
// Identity and course subscriptions are set in-band by control messages and
// read concurrently by broadcast filtering.
type Connection struct {
	transport Transport
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *zap.Logger

	mu       sync.RWMutex
	userID   string
	userRole event.Role
	courses  map[string]struct{}
}

// NewConnection wraps a transport and starts its writer goroutine.
// The new connection has no identity and an empty subscription set.
func NewConnection(t Transport, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		transport: t,
		writeCh:   make(chan []byte, sendBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		courses:   make(map[string]struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.transport.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("connection write failed", zap.Error(err))
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send serializes an envelope and queues it for delivery.
func (c *Connection) Send(env *event.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return ErrInvalidEnvelope
	}
	return c.enqueue(data)
}

// enqueue hands a pre-serialized frame to the writer goroutine. Broadcasts
// use this so the envelope is marshaled once per fanout, not per recipient.
func (c *Connection) enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrSendTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.transport != nil {
			err = c.transport.Close()
		}
	})
	return err
}

// Done is closed when the connection is torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Open reports whether the transport is still usable for delivery.
func (c *Connection) Open() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// SetIdentity records who this connection belongs to. Last write wins;
// re-authentication simply overwrites the previous identity.
func (c *Connection) SetIdentity(userID string, role event.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.userRole = role
}

// UserID returns the authenticated user ID, or "" before auth.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Role returns the authenticated role, or "" before auth.
func (c *Connection) Role() event.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userRole
}

// Authenticated reports whether an auth control message has been applied.
func (c *Connection) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID != ""
}

// Subscribe adds a course to the subscription set. Re-subscribing is a no-op.
func (c *Connection) Subscribe(courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[courseID] = struct{}{}
}

// Unsubscribe removes a course from the subscription set if present.
func (c *Connection) Unsubscribe(courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.courses, courseID)
}

// SubscribedTo reports whether the connection asked for this course's events.
func (c *Connection) SubscribedTo(courseID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.courses[courseID]
	return ok
}

// Courses returns the subscribed course IDs in sorted order.
func (c *Connection) Courses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.courses))
	for id := range c.courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
