package event

import (
	"encoding/json"
	"time"
)

// Inbound control message types sent by clients.
const (
	TypeAuth              = "auth"
	TypeSubscribeCourse   = "subscribe_course"
	TypeUnsubscribeCourse = "unsubscribe_course"
	TypePing              = "ping"
)

// Outbound acknowledgement types sent in direct reply to control messages.
const (
	TypeAuthSuccess  = "auth_success"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
)

// Outbound domain broadcast types. Course-scoped broadcasts carry courseId
// inside Data; grade updates are scoped to a single user instead.
const (
	TypeChatMessage         = "chat_message"
	TypeAnnouncementCreated = "announcement_created"
	TypeAssignmentUpdated   = "assignment_updated"
	TypeGradeUpdated        = "grade_updated"
	TypeSubmissionCreated   = "submission_created"
	TypeCourseUpdated       = "course_updated"
)

// Role identifies what kind of user a connection authenticated as.
type Role string

const (
	RoleStudent       Role = "student"
	RoleInstructor    Role = "instructor"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdministrator:
		return true
	default:
		return false
	}
}

// Envelope is the single JSON frame format used in both directions.
// Control fields (UserID, UserRole, CourseID) are flattened at the top level;
// domain broadcasts carry their payload in Data with a server-side Timestamp.
type Envelope struct {
	Type      string         `json:"type"`
	UserID    string         `json:"userId,omitempty"`
	UserRole  Role           `json:"userRole,omitempty"`
	CourseID  string         `json:"courseId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Decode parses a raw wire frame into an envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DataCourseID returns data.courseId when present as a string, else "".
func (e *Envelope) DataCourseID() string {
	if e.Data == nil {
		return ""
	}
	id, _ := e.Data["courseId"].(string)
	return id
}

// Broadcast builds a domain broadcast envelope stamped with the current time.
func Broadcast(eventType string, data map[string]any) *Envelope {
	return &Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// AuthSuccess acknowledges an auth control message.
func AuthSuccess(userID string) *Envelope {
	return &Envelope{Type: TypeAuthSuccess, UserID: userID}
}

// Subscribed acknowledges a subscribe_course control message.
func Subscribed(courseID string) *Envelope {
	return &Envelope{Type: TypeSubscribed, CourseID: courseID}
}

// Unsubscribed acknowledges an unsubscribe_course control message.
func Unsubscribed(courseID string) *Envelope {
	return &Envelope{Type: TypeUnsubscribed, CourseID: courseID}
}

// Pong acknowledges a ping control message.
func Pong() *Envelope {
	return &Envelope{Type: TypePong}
}
