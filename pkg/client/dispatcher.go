package client

import (
	"go.uber.org/zap"

	"checkmate/internal/event"
)

// Invalidator is the cache collaborator: marking a query key stale causes the
// next read to refetch.
type Invalidator interface {
	Invalidate(key ...string)
}

// Query key families, mirroring the cached queries the UI reads.
const (
	KeyChats         = "chats"
	KeyAnnouncements = "announcements"
	KeyAssignments   = "assignments"
	KeyCourses       = "courses"
	KeyGrades        = "grades"
	KeySubmissions   = "submissions"
)

// Dispatcher maps each inbound event type to the query keys that must be
// invalidated so the UI refetches fresh data. Students seeing grades and
// assignments without a manual refresh depends on this table being exact.
type Dispatcher struct {
	cache  Invalidator
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil cache disables dispatch.
func NewDispatcher(cache Invalidator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cache: cache, logger: logger}
}

// Dispatch invalidates the query keys affected by one inbound event.
// Acknowledgements and unknown types invalidate nothing.
func (d *Dispatcher) Dispatch(env *event.Envelope) {
	if d.cache == nil {
		return
	}

	courseID := env.DataCourseID()

	switch env.Type {
	case event.TypeChatMessage:
		d.cache.Invalidate(KeyChats)
		if courseID != "" {
			d.cache.Invalidate(KeyChats, courseID)
		}

	case event.TypeAnnouncementCreated:
		d.cache.Invalidate(KeyAnnouncements)
		if courseID != "" {
			d.cache.Invalidate(KeyAnnouncements, courseID)
		}

	case event.TypeAssignmentUpdated:
		d.cache.Invalidate(KeyAssignments)
		d.cache.Invalidate(KeyCourses)
		if courseID != "" {
			d.cache.Invalidate(KeyCourses, courseID)
			d.cache.Invalidate(KeyCourses, courseID, KeyAssignments)
		}

	case event.TypeGradeUpdated:
		d.cache.Invalidate(KeyGrades)
		d.cache.Invalidate(KeySubmissions)

	case event.TypeSubmissionCreated:
		d.cache.Invalidate(KeySubmissions)
		d.cache.Invalidate(KeyCourses)
		if courseID != "" {
			d.cache.Invalidate(KeyCourses, courseID, KeySubmissions)
		}

	case event.TypeCourseUpdated:
		d.cache.Invalidate(KeyCourses)
		if courseID != "" {
			d.cache.Invalidate(KeyCourses, courseID)
		}
	}
}
