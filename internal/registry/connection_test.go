package registry

import (
	"errors"
	"testing"

	"checkmate/internal/event"
)

func TestConnection_InitialState(t *testing.T) {
	conn, _ := newTestConnection(t)

	if conn.Authenticated() {
		t.Error("new connection should not be authenticated")
	}
	if conn.UserID() != "" {
		t.Errorf("expected empty user ID, got %q", conn.UserID())
	}
	if len(conn.Courses()) != 0 {
		t.Errorf("expected empty subscription set, got %v", conn.Courses())
	}
	if !conn.Open() {
		t.Error("new connection should be open")
	}
}

func TestConnection_IdentityLastWriteWins(t *testing.T) {
	conn, _ := newTestConnection(t)

	conn.SetIdentity("u1", event.RoleStudent)
	conn.SetIdentity("u2", event.RoleInstructor)

	if conn.UserID() != "u2" {
		t.Errorf("expected u2 after re-auth, got %q", conn.UserID())
	}
	if conn.Role() != event.RoleInstructor {
		t.Errorf("expected instructor role, got %q", conn.Role())
	}
}

func TestConnection_SubscriptionSetSemantics(t *testing.T) {
	conn, _ := newTestConnection(t)

	conn.Subscribe("K1")
	conn.Subscribe("K1")
	conn.Subscribe("K2")

	courses := conn.Courses()
	if len(courses) != 2 {
		t.Fatalf("expected 2 courses, got %v", courses)
	}
	if courses[0] != "K1" || courses[1] != "K2" {
		t.Errorf("expected sorted [K1 K2], got %v", courses)
	}

	conn.Unsubscribe("K1")
	if conn.SubscribedTo("K1") {
		t.Error("K1 still subscribed after unsubscribe")
	}

	// Removing an absent course is a no-op.
	conn.Unsubscribe("K9")
	if len(conn.Courses()) != 1 {
		t.Errorf("expected 1 course, got %v", conn.Courses())
	}
}

func TestConnection_SendDeliversFrame(t *testing.T) {
	conn, ft := newTestConnection(t)

	if err := conn.Send(event.Pong()); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitForFrames(t, ft, 1)

	if got := ft.envelopes(t)[0].Type; got != event.TypePong {
		t.Errorf("expected pong frame, got %q", got)
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	conn, _ := newTestConnection(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if conn.Open() {
		t.Error("connection should not be open after close")
	}

	err := conn.Send(event.Pong())
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	conn, ft := newTestConnection(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	ft.mu.Lock()
	closed := ft.closed
	ft.mu.Unlock()
	if !closed {
		t.Error("transport not closed")
	}
}
