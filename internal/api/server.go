// Package api exposes the HTTP surface the rest of the application calls
// after committing a domain mutation. Handlers follow commit-then-notify:
// the row is durable before any broadcast, and a missed broadcast degrades
// to "real-time update missed", recovered by the normal refetch paths.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"checkmate/internal/store"
)

// Server is the HTTP API. It implements http.Handler.
type Server struct {
	notifier Notifier
	store    MessageStore
	router   chi.Router
	logger   *zap.Logger
}

// NewServer creates the API server and mounts its routes.
func NewServer(st MessageStore, notifier Notifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		notifier: notifier,
		store:    st,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Route("/courses/{courseID}", func(r chi.Router) {
			r.Post("/messages", s.handlePostMessage)
			r.Get("/messages", s.handleListMessages)
			r.Post("/announcements", s.handlePostAnnouncement)
			r.Get("/announcements", s.handleListAnnouncements)
		})
		r.Route("/notify", func(r chi.Router) {
			r.Post("/assignment", s.notifyCourseScoped(s.notifier.NotifyAssignmentUpdate))
			r.Post("/submission", s.notifyCourseScoped(s.notifier.NotifySubmissionCreated))
			r.Post("/course", s.notifyCourseScoped(s.notifier.NotifyCourseUpdate))
			r.Post("/grade", s.handleNotifyGrade)
		})
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.notifier.Stats())
}

type postMessageRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "userId and content are required")
		return
	}

	msg := &store.ChatMessage{
		CourseID: courseID,
		UserID:   req.UserID,
		Content:  req.Content,
	}
	if err := s.store.SaveChatMessage(r.Context(), msg); err != nil {
		s.logger.Error("save chat message failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "message not saved")
		return
	}

	s.notifier.NotifyChatMessage(courseID, toPayload(msg))
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := s.store.RecentChatMessages(r.Context(), courseID, limit)
	if err != nil {
		s.logger.Error("list chat messages failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "messages unavailable")
		return
	}
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type postAnnouncementRequest struct {
	AuthorID string `json:"authorId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func (s *Server) handlePostAnnouncement(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	var req postAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AuthorID == "" || req.Title == "" {
		s.writeError(w, http.StatusBadRequest, "authorId and title are required")
		return
	}

	ann := &store.Announcement{
		CourseID: courseID,
		AuthorID: req.AuthorID,
		Title:    req.Title,
		Content:  req.Content,
	}
	if err := s.store.SaveAnnouncement(r.Context(), ann); err != nil {
		s.logger.Error("save announcement failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "announcement not saved")
		return
	}

	s.notifier.NotifyAnnouncementCreated(courseID, toPayload(ann))
	s.writeJSON(w, http.StatusCreated, ann)
}

func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	announcements, err := s.store.CourseAnnouncements(r.Context(), courseID, limit)
	if err != nil {
		s.logger.Error("list announcements failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "announcements unavailable")
		return
	}
	if announcements == nil {
		announcements = []store.Announcement{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"announcements": announcements})
}

// notifyCourseScoped handles the fire-and-forget endpoints whose payloads were
// already committed by the caller. The body must carry courseId; the rest is
// attached verbatim as broadcast data.
func (s *Server) notifyCourseScoped(notify func(courseID string, data map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, ok := s.decodePayload(w, r)
		if !ok {
			return
		}
		courseID, _ := data["courseId"].(string)
		if courseID == "" {
			s.writeError(w, http.StatusBadRequest, "courseId is required")
			return
		}
		notify(courseID, data)
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func (s *Server) handleNotifyGrade(w http.ResponseWriter, r *http.Request) {
	data, ok := s.decodePayload(w, r)
	if !ok {
		return
	}
	userID, _ := data["userId"].(string)
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	s.notifier.NotifyGradeUpdate(userID, data)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return data, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// toPayload flattens a persisted row into broadcast data via its JSON tags.
func toPayload(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}
