package http

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketLiveFeed(t *testing.T) {
	server := newTestServer(t)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/exams/exam-1/live?userId=teacher-1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect subscribed snapshot first.
	msgType, payload := readNext(conn, t, "subscribed")
	if payload["examId"] != "exam-1" {
		t.Fatalf("expected exam-1 snapshot, got %v (%s)", payload, msgType)
	}

	// A student starting an attempt shows up on the feed.
	resp, attempt := doJSON(t, http.MethodPost, server.URL+"/exams/exam-1/attempts", "", map[string]string{"name": "Ana"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d", resp.StatusCode)
	}
	_, ev := readNext(conn, t, "event")
	if ev["type"] != "started" || ev["attemptId"] != attempt["id"] {
		t.Fatalf("expected started event, got %v", ev)
	}

	// Forgive a life through the socket.
	msg := map[string]any{
		"type":    "forgiveLife",
		"payload": map[string]any{"attemptId": attempt["id"]},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	ackSeen, eventSeen := false, false
	for i := 0; i < 2; i++ {
		typ, _ := readNext(conn, t, "")
		switch typ {
		case "ack":
			ackSeen = true
		case "event":
			eventSeen = true
		}
	}
	if !ackSeen || !eventSeen {
		t.Fatalf("expected ack and event, got ack=%v event=%v", ackSeen, eventSeen)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, p := readNext(conn, t, "error"); p["code"] != "validation" {
		t.Fatalf("expected validation error, got %v", p)
	}
}

func TestWebSocketRejectsNonManager(t *testing.T) {
	server := newTestServer(t)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/exams/exam-1/live?userId=student-1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func TestDeliverStopsOnceWriterExits(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})

	if !deliver(send, writerDone, outboundMessage[any]{Type: "ack"}) {
		t.Fatalf("expected delivery while writer runs")
	}

	close(writerDone)
	result := make(chan bool, 1)
	go func() { result <- deliver(send, writerDone, outboundMessage[any]{Type: "ack"}) }()
	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected delivery to report a stopped writer")
		}
	case <-time.After(time.Second):
		t.Fatalf("deliver blocked on a full queue after the writer stopped")
	}
}
