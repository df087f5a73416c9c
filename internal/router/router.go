package router

import (
	"go.uber.org/zap"

	"checkmate/internal/event"
	"checkmate/internal/registry"
)

// Router applies inbound control messages to the connection that sent them.
// Authentication and course subscription are independent axes: a connection
// may subscribe before authenticating, and re-authentication is last-write-
// wins. No credential verification happens here; trust is established
// upstream by the session that produced the page.
type Router struct {
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewRouter creates a control-message router.
func NewRouter(limiter *RateLimiter, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, DefaultRateWindow)
	}
	return &Router{
		limiter: limiter,
		logger:  logger,
	}
}

// HandleInbound parses one wire frame and mutates the sending connection's
// state. Malformed JSON and unknown types are logged and dropped; the
// connection stays open in every case.
func (r *Router) HandleInbound(conn *registry.Connection, raw []byte) {
	if !r.limiter.Allow(conn) {
		r.logger.Warn("inbound message rate limit exceeded",
			zap.String("user_id", conn.UserID()))
		return
	}

	env, err := event.Decode(raw)
	if err != nil {
		r.logger.Warn("malformed inbound message", zap.Error(err))
		return
	}

	switch env.Type {
	case event.TypeAuth:
		r.handleAuth(conn, env)
	case event.TypeSubscribeCourse:
		r.handleSubscribe(conn, env)
	case event.TypeUnsubscribeCourse:
		r.handleUnsubscribe(conn, env)
	case event.TypePing:
		r.reply(conn, event.Pong())
	default:
		r.logger.Warn("unknown inbound event type", zap.String("type", env.Type))
	}
}

// Release drops per-connection router state. Called by the connection's
// close path.
func (r *Router) Release(conn *registry.Connection) {
	r.limiter.Forget(conn)
}

func (r *Router) handleAuth(conn *registry.Connection, env *event.Envelope) {
	if env.UserID == "" {
		r.logger.Debug("auth message missing userId, ignored")
		return
	}
	if env.UserRole != "" && !env.UserRole.Valid() {
		r.logger.Debug("auth message with unknown role, ignored",
			zap.String("role", string(env.UserRole)))
		return
	}

	conn.SetIdentity(env.UserID, env.UserRole)
	r.logger.Info("connection authenticated",
		zap.String("user_id", env.UserID),
		zap.String("role", string(env.UserRole)))
	r.reply(conn, event.AuthSuccess(env.UserID))
}

func (r *Router) handleSubscribe(conn *registry.Connection, env *event.Envelope) {
	if env.CourseID == "" {
		r.logger.Debug("subscribe_course missing courseId, ignored")
		return
	}

	conn.Subscribe(env.CourseID)
	r.logger.Info("course subscribed",
		zap.String("user_id", conn.UserID()),
		zap.String("course_id", env.CourseID))
	r.reply(conn, event.Subscribed(env.CourseID))
}

func (r *Router) handleUnsubscribe(conn *registry.Connection, env *event.Envelope) {
	if env.CourseID == "" {
		r.logger.Debug("unsubscribe_course missing courseId, ignored")
		return
	}

	conn.Unsubscribe(env.CourseID)
	r.logger.Info("course unsubscribed",
		zap.String("user_id", conn.UserID()),
		zap.String("course_id", env.CourseID))
	r.reply(conn, event.Unsubscribed(env.CourseID))
}

func (r *Router) reply(conn *registry.Connection, env *event.Envelope) {
	if err := conn.Send(env); err != nil {
		r.logger.Debug("ack delivery failed",
			zap.String("type", env.Type), zap.Error(err))
	}
}
