// Package livereload implements the browser-facing streaming channel from
// spec §4.9: a websocket per connected browser, fed by the watcher's
// rebuild events. Reconnection always triggers a full reload on the
// client side, since a browser that was disconnected may have missed
// events — the server never tries to replay history to a reconnecting
// client.
package livereload

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Message is one live-reload event. Type discriminates the four shapes
// spec §4.9 names; only the fields relevant to Type are populated.
type Message struct {
	Type string `json:"type"` // "new_revision", "build_progress", "build_error", "hot_patch"

	RevID      string `json:"revid,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Message    string `json:"message,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`

	Path    string          `json:"path,omitempty"`
	PatchType string        `json:"patch_type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewRevision(revID string) Message { return Message{Type: "new_revision", RevID: revID} }

func BuildProgress(phase, message string) Message {
	return Message{Type: "build_progress", Phase: phase, Message: message}
}

func BuildError(diagnostic string) Message {
	return Message{Type: "build_error", Diagnostic: diagnostic}
}

func HotPatch(path, patchType string, payload json.RawMessage) Message {
	return Message{Type: "hot_patch", Path: path, PatchType: patchType, Payload: payload}
}

// upgrader accepts any origin: the channel carries no credentials and the
// edge's development mode is never exposed outside a trusted network.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans out Messages to every connected browser for one tenant's
// working tree.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Message
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan Message)}
}

// Serve upgrades r to a websocket and holds the connection open, writing
// every Broadcast call's message to this client until it disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	out := make(chan Message, 16)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// A reader goroutine drains (and discards) client frames so control
	// frames are processed and the Hub notices a disconnect promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		}
	}
}

// Broadcast sends msg to every currently connected browser. Slow clients
// are dropped rather than allowed to block the broadcaster — a missed
// live-reload event is recovered by the client's own full-reload-on-
// reconnect fallback, never by the server re-sending.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			conn.Close()
		}
	}
}
