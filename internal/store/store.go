// Package store persists the domain rows the real-time layer itself
// originates: chat messages and announcements. Every other domain event
// arrives at the notify API already committed by the main application and is
// fanned out verbatim.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	course_id  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_course ON chat_messages(course_id, created_at);

CREATE TABLE IF NOT EXISTS announcements (
	id         TEXT PRIMARY KEY,
	course_id  TEXT NOT NULL,
	author_id  TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_announcements_course ON announcements(course_id, created_at);
`

// ChatMessage is a persisted course chat message.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"courseId"`
	UserID    string    `db:"user_id" json:"userId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Announcement is a persisted course announcement.
type Announcement struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"courseId"`
	AuthorID  string    `db:"author_id" json:"authorId"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Store wraps the sqlite database.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the sqlite database at path and ensures the schema exists.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// sqlite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveChatMessage inserts a chat message, assigning the server-side ID and
// timestamp. Client-provided IDs are ignored.
func (s *Store) SaveChatMessage(ctx context.Context, m *ChatMessage) error {
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now().UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chat_messages (id, course_id, user_id, content, created_at)
		VALUES (:id, :course_id, :user_id, :content, :created_at)`, m)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// RecentChatMessages returns up to limit messages for a course, oldest first.
func (s *Store) RecentChatMessages(ctx context.Context, courseID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []ChatMessage
	err := s.db.SelectContext(ctx, &messages, `
		SELECT id, course_id, user_id, content, created_at
		FROM (
			SELECT * FROM chat_messages
			WHERE course_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC`, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("select chat messages: %w", err)
	}
	return messages, nil
}

// SaveAnnouncement inserts an announcement, assigning the server-side ID and
// timestamp.
func (s *Store) SaveAnnouncement(ctx context.Context, a *Announcement) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO announcements (id, course_id, author_id, title, content, created_at)
		VALUES (:id, :course_id, :author_id, :title, :content, :created_at)`, a)
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

// CourseAnnouncements returns up to limit announcements for a course, newest
// first.
func (s *Store) CourseAnnouncements(ctx context.Context, courseID string, limit int) ([]Announcement, error) {
	if limit <= 0 {
		limit = 20
	}

	var announcements []Announcement
	err := s.db.SelectContext(ctx, &announcements, `
		SELECT id, course_id, author_id, title, content, created_at
		FROM announcements
		WHERE course_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("select announcements: %w", err)
	}
	return announcements, nil
}
