package api

import (
	"context"

	"checkmate/internal/store"
)

// Notifier is the broadcast surface the API needs from the connection
// registry.
type Notifier interface {
	NotifyChatMessage(courseID string, data map[string]any)
	NotifyAnnouncementCreated(courseID string, data map[string]any)
	NotifyAssignmentUpdate(courseID string, data map[string]any)
	NotifyGradeUpdate(userID string, data map[string]any)
	NotifySubmissionCreated(courseID string, data map[string]any)
	NotifyCourseUpdate(courseID string, data map[string]any)
	Stats() map[string]int
}

// MessageStore persists the rows the real-time layer originates itself.
type MessageStore interface {
	SaveChatMessage(ctx context.Context, m *store.ChatMessage) error
	RecentChatMessages(ctx context.Context, courseID string, limit int) ([]store.ChatMessage, error)
	SaveAnnouncement(ctx context.Context, a *store.Announcement) error
	CourseAnnouncements(ctx context.Context, courseID string, limit int) ([]store.Announcement, error)
}
