package registry

import (
	"sync"

	"go.uber.org/zap"

	"checkmate/internal/event"
)

// Registry owns the live connection set and delivers domain events to the
// correct subset. It is created at server start and passed by reference to
// every code path that needs to notify; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Connection]struct{}
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[*Connection]struct{}),
		logger: logger,
	}
}

// Register adds a connection to the membership set. The connection arrives
// with no identity and no subscriptions; both are established in-band later.
func (r *Registry) Register(c *Connection) {
	if c == nil {
		return
	}
	r.mu.Lock()
	r.conns[c] = struct{}{}
	total := len(r.conns)
	r.mu.Unlock()
	r.logger.Debug("connection registered", zap.Int("total", total))
}

// Unregister removes a connection from the membership set. Idempotent:
// removing an absent connection is a no-op.
func (r *Registry) Unregister(c *Connection) {
	if c == nil {
		return
	}
	r.mu.Lock()
	delete(r.conns, c)
	total := len(r.conns)
	r.mu.Unlock()
	r.logger.Debug("connection unregistered", zap.Int("total", total))
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns registry counters for the stats endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := 0
	subscriptions := 0
	for c := range r.conns {
		if c.Authenticated() {
			authenticated++
		}
		subscriptions += len(c.Courses())
	}
	return map[string]int{
		"total_connections":    len(r.conns),
		"authenticated":        authenticated,
		"course_subscriptions": subscriptions,
	}
}

// snapshot copies the membership set so register/unregister during a fanout
// cannot corrupt iteration.
func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// broadcast serializes one envelope and delivers it to every open connection
// accepted by match. A failed delivery is logged and never stops the loop.
func (r *Registry) broadcast(eventType string, data map[string]any, match func(*Connection) bool) {
	env := event.Broadcast(eventType, data)
	frame, err := env.Encode()
	if err != nil {
		r.logger.Error("broadcast envelope not serializable",
			zap.String("event_type", eventType), zap.Error(err))
		return
	}

	delivered := 0
	for _, c := range r.snapshot() {
		if !c.Open() {
			continue // reaped by its own close handler shortly
		}
		if match != nil && !match(c) {
			continue
		}
		if err := c.enqueue(frame); err != nil {
			r.logger.Warn("broadcast delivery failed",
				zap.String("event_type", eventType),
				zap.String("user_id", c.UserID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	r.logger.Debug("broadcast delivered",
		zap.String("event_type", eventType), zap.Int("recipients", delivered))
}

// Broadcast delivers an event to every open connection.
func (r *Registry) Broadcast(eventType string, data map[string]any) {
	r.broadcast(eventType, data, nil)
}

// BroadcastToUser delivers an event to the connections authenticated as
// userID. Connections with no identity never match.
func (r *Registry) BroadcastToUser(userID, eventType string, data map[string]any) {
	r.broadcast(eventType, data, func(c *Connection) bool {
		return userID != "" && c.UserID() == userID
	})
}

// BroadcastToCourse delivers an event to the connections subscribed to
// courseID, injecting courseId into the payload so receivers can self-filter.
// The caller's map is copied, not mutated.
func (r *Registry) BroadcastToCourse(courseID, eventType string, data map[string]any) {
	scoped := make(map[string]any, len(data)+1)
	for k, v := range data {
		scoped[k] = v
	}
	scoped["courseId"] = courseID

	r.broadcast(eventType, scoped, func(c *Connection) bool {
		return c.SubscribedTo(courseID)
	})
}

// Named notify wrappers. Each fixes the event type and target selection for
// one domain event so calling code never constructs raw envelopes.

// NotifyChatMessage announces a new chat message to a course's subscribers.
func (r *Registry) NotifyChatMessage(courseID string, data map[string]any) {
	r.BroadcastToCourse(courseID, event.TypeChatMessage, data)
}

// NotifyAnnouncementCreated announces a new announcement to a course's subscribers.
func (r *Registry) NotifyAnnouncementCreated(courseID string, data map[string]any) {
	r.BroadcastToCourse(courseID, event.TypeAnnouncementCreated, data)
}

// NotifyAssignmentUpdate announces an assignment change to a course's subscribers.
func (r *Registry) NotifyAssignmentUpdate(courseID string, data map[string]any) {
	r.BroadcastToCourse(courseID, event.TypeAssignmentUpdated, data)
}

// NotifyGradeUpdate announces a recorded grade to the graded user only.
func (r *Registry) NotifyGradeUpdate(userID string, data map[string]any) {
	r.BroadcastToUser(userID, event.TypeGradeUpdated, data)
}

// NotifySubmissionCreated announces a new submission to a course's subscribers.
func (r *Registry) NotifySubmissionCreated(courseID string, data map[string]any) {
	r.BroadcastToCourse(courseID, event.TypeSubmissionCreated, data)
}

// NotifyCourseUpdate announces a course change to its subscribers.
func (r *Registry) NotifyCourseUpdate(courseID string, data map[string]any) {
	r.BroadcastToCourse(courseID, event.TypeCourseUpdated, data)
}
