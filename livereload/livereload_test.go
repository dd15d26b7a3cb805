package livereload

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToConnectedClient(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give Serve time to register the connection before broadcasting.
	time.Sleep(20 * time.Millisecond)
	hub.Broadcast(NewRevision("01ARZ3NDEKTSV4RRFFQ69G5FAV"))

	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "new_revision", got.Type)
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", got.RevID)
}

func TestMessageConstructors(t *testing.T) {
	require.Equal(t, Message{Type: "build_progress", Phase: "scan", Message: "walking tree"}, BuildProgress("scan", "walking tree"))
	require.Equal(t, Message{Type: "build_error", Diagnostic: "boom"}, BuildError("boom"))
}
