// Package progress defines the structured progress events emitted during
// a capture run (spec §7 "User-visible behavior") and a WebSocket
// broadcaster whose HandleWebSocket handler relays them to connected
// observers; no command in this repository mounts that handler. Grounded on the
// teacher's internal/handlers/websocket.go: per-connection mutex,
// broadcast-to-all-clients shape, and typed "envelope + payload" message
// wrapping.
package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

// EventType enumerates spec §7's structured progress event categories.
type EventType string

const (
	EventPageProgress     EventType = "page-progress"
	EventAPICapture       EventType = "api-capture"
	EventAssetCapture     EventType = "asset-capture"
	EventDuplicateSkipped EventType = "duplicate-skipped"
	EventFlushProgress    EventType = "flush-progress"
	EventLifecycle        EventType = "lifecycle"
	EventVerbose          EventType = "verbose"
)

// PagePhase enumerates the fixed per-URL phase order spec §5 mandates:
// navigating -> network-idle -> scrolling -> settling -> extracting-links
// -> (capturing-html?) -> completed|error|retrying|backing-off.
type PagePhase string

const (
	PhaseNavigating      PagePhase = "navigating"
	PhaseNetworkIdle     PagePhase = "network-idle"
	PhaseScrolling       PagePhase = "scrolling"
	PhaseSettling        PagePhase = "settling"
	PhaseExtractingLinks PagePhase = "extracting-links"
	PhaseCapturingHTML   PagePhase = "capturing-html"
	PhaseCompleted       PagePhase = "completed"
	PhaseError           PagePhase = "error"
	PhaseRetrying        PagePhase = "retrying"
	PhaseBackingOff      PagePhase = "backing-off"
)

// Event is the envelope broadcast to every observer connected through
// HandleWebSocket.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// PageProgressPayload reports one page's current phase.
type PageProgressPayload struct {
	URL     string    `json:"url"`
	Depth   int       `json:"depth"`
	Phase   PagePhase `json:"phase"`
	Retries int       `json:"retries,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// APICapturePayload reports one captured API fixture.
type APICapturePayload struct {
	Method     string `json:"method"`
	Pattern    string `json:"pattern"`
	Status     int    `json:"status"`
	FixtureID  string `json:"fixtureId"`
	SourcePage string `json:"sourcePageUrl"`
}

// AssetCapturePayload reports one captured static asset.
type AssetCapturePayload struct {
	URL         string `json:"url"`
	LocalPath   string `json:"localPath"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// DuplicateSkippedPayload reports a would-be write skipped because
// identical content already exists on disk (spec §4.8).
type DuplicateSkippedPayload struct {
	Path string `json:"path"`
}

// FlushProgressPayload reports WAL/manifest flush progress at shutdown.
type FlushProgressPayload struct {
	Stage string `json:"stage"`
}

// LifecyclePayload reports orchestrator-level lifecycle transitions.
type LifecyclePayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// Broadcaster fans out Events to connected WebSocket observers, exactly
// the teacher's per-client-mutex broadcast pattern generalized from log
// entries to progress events.
type Broadcaster struct {
	logger  arbor.ILogger
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster(logger arbor.ILogger) *Broadcaster {
	return &Broadcaster{
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// HandleWebSocket upgrades r into a long-lived observer connection.
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to upgrade progress websocket connection")
		return
	}

	b.mu.Lock()
	b.clients[conn] = &sync.Mutex{}
	b.mu.Unlock()

	b.logger.Info().Int("clients", len(b.clients)).Msg("progress observer connected")

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		remaining := len(b.clients)
		b.mu.Unlock()
		conn.Close()
		b.logger.Info().Int("clients", remaining).Msg("progress observer disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Emit broadcasts one event of eventType with payload to all connected
// observers. A Broadcaster with zero clients is a cheap no-op.
func (b *Broadcaster) Emit(eventType EventType, payload interface{}) {
	b.mu.RLock()
	if len(b.clients) == 0 {
		b.mu.RUnlock()
		return
	}
	clients := make([]*websocket.Conn, 0, len(b.clients))
	mutexes := make([]*sync.Mutex, 0, len(b.clients))
	for conn, mu := range b.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mu)
	}
	b.mu.RUnlock()

	ev := Event{Type: eventType, Timestamp: time.Now(), Payload: payload}
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal progress event")
		return
	}

	for i, conn := range clients {
		mu := mutexes[i]
		mu.Lock()
		writeErr := conn.WriteMessage(websocket.TextMessage, data)
		mu.Unlock()
		if writeErr != nil {
			b.logger.Warn().Err(writeErr).Msg("failed to send progress event to observer")
		}
	}
}
