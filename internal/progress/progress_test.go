package progress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

func TestEmitWithNoClientsIsNoOp(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())
	// Must not panic or block with zero observers connected.
	b.Emit(EventLifecycle, LifecyclePayload{Stage: "starting"})
}

func TestBroadcasterDeliversEventToConnectedObserver(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(b.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the client before emitting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.RLock()
		n := len(b.clients)
		b.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never registered the client connection")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.Emit(EventPageProgress, PageProgressPayload{URL: "https://x.test/", Phase: PhaseNavigating})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"page-progress"`) || !strings.Contains(string(data), "navigating") {
		t.Fatalf("unexpected message: %s", data)
	}
}
