package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// queueOnly creates a Client with a queue but no connection.
func queueOnly(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, queueSize)}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	c1 := queueOnly(hub)
	c2 := queueOnly(hub)

	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client, got %d", got)
	}
}

func TestBroadcastVoteEvent(t *testing.T) {
	hub := NewHub(testLogger())
	c := queueOnly(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	at := time.Date(2025, 5, 29, 12, 0, 0, 0, time.UTC)
	hub.Broadcast(NewEvent(EventVoteRecorded, at, map[string]any{"voter": "Lorenzo", "choice": "presente"}))

	select {
	case data := <-c.send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != EventVoteRecorded {
			t.Errorf("type = %q, want %q", got.Type, EventVoteRecorded)
		}
		if got.Data["voter"] != "Lorenzo" {
			t.Errorf("voter = %v, want Lorenzo", got.Data["voter"])
		}
		if !got.At.Equal(at) {
			t.Errorf("at = %v, want %v", got.At, at)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBroadcastFullQueueDrops(t *testing.T) {
	hub := NewHub(testLogger())
	c := queueOnly(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < queueSize+3; i++ {
		hub.Broadcast(NewEvent(EventPromptPosted, time.Now(), nil))
	}
	if got := len(c.send); got != queueSize {
		t.Errorf("queued = %d, want %d", got, queueSize)
	}
}

func TestHandlerDeliversEvents(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast(NewEvent(EventLeaderboardPublished, time.Now(), map[string]any{"entries": 2}))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), EventLeaderboardPublished) {
		t.Errorf("message = %s", data)
	}
}
