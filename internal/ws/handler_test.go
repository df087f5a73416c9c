package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"checkmate/internal/event"
	"checkmate/internal/registry"
	"checkmate/internal/router"
)

type testServer struct {
	server   *httptest.Server
	registry *registry.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg := registry.NewRegistry(nil)
	rtr := router.NewRouter(nil, nil)
	handler := NewHandler(reg, rtr, nil)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{server: srv, registry: reg}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *event.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env event.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return &env
}

func waitForCount(t *testing.T, reg *registry.Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d registered connections, got %d", want, reg.Count())
}

func TestHandler_AuthSubscribeRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	waitForCount(t, ts.registry, 1)

	if err := conn.WriteJSON(event.Envelope{Type: event.TypeAuth, UserID: "u1", UserRole: event.RoleStudent}); err != nil {
		t.Fatalf("write auth failed: %v", err)
	}
	ack := readEnvelope(t, conn)
	if ack.Type != event.TypeAuthSuccess || ack.UserID != "u1" {
		t.Errorf("expected auth_success for u1, got %+v", ack)
	}

	if err := conn.WriteJSON(event.Envelope{Type: event.TypeSubscribeCourse, CourseID: "K1"}); err != nil {
		t.Fatalf("write subscribe failed: %v", err)
	}
	ack = readEnvelope(t, conn)
	if ack.Type != event.TypeSubscribed || ack.CourseID != "K1" {
		t.Errorf("expected subscribed ack for K1, got %+v", ack)
	}
}

func TestHandler_BroadcastReachesSubscriberOnly(t *testing.T) {
	ts := newTestServer(t)

	connA := ts.dial(t)
	connB := ts.dial(t)
	waitForCount(t, ts.registry, 2)

	if err := connA.WriteJSON(event.Envelope{Type: event.TypeSubscribeCourse, CourseID: "K1"}); err != nil {
		t.Fatal(err)
	}
	readEnvelope(t, connA)
	if err := connB.WriteJSON(event.Envelope{Type: event.TypeSubscribeCourse, CourseID: "K2"}); err != nil {
		t.Fatal(err)
	}
	readEnvelope(t, connB)

	ts.registry.NotifyChatMessage("K1", map[string]any{"content": "hi"})

	env := readEnvelope(t, connA)
	if env.Type != event.TypeChatMessage {
		t.Errorf("expected chat_message, got %q", env.Type)
	}
	if env.Data["content"] != "hi" || env.Data["courseId"] != "K1" {
		t.Errorf("unexpected payload: %v", env.Data)
	}

	// B subscribed to a different course and must receive nothing.
	_ = connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray event.Envelope
	if err := connB.ReadJSON(&stray); err == nil {
		t.Errorf("connection B received stray broadcast: %+v", stray)
	}
}

func TestHandler_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	waitForCount(t, ts.registry, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(event.Envelope{Type: event.TypePing}); err != nil {
		t.Fatal(err)
	}

	env := readEnvelope(t, conn)
	if env.Type != event.TypePong {
		t.Errorf("expected pong after malformed frame, got %+v", env)
	}
}

func TestHandler_CloseReapsConnection(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	waitForCount(t, ts.registry, 1)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitForCount(t, ts.registry, 0)
}
