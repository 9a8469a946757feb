package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/internal/infrastructure/distributed"
)

func TestWSHandler_BroadcastsToConnectedClients(t *testing.T) {
	h := NewWSHandler(nil)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.ConnectedClients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for connection to register")
		}
		time.Sleep(5 * time.Millisecond)
	}

	event := &distributed.Event{Type: "chunk_end", FeedID: domain.FeedID("feed-a")}
	h.Broadcast(event)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var received distributed.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("reading broadcast event: %v", err)
	}
	if received.Type != "chunk_end" || received.FeedID != "feed-a" {
		t.Errorf("unexpected event: %+v", received)
	}
}
