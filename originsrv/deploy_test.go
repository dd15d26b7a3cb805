package originsrv

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDeployRejectsCyclicPageGraph submits a bundle where two pages name
// each other as parent, and checks ingest fails closed rather than handing
// revload.Load a graph it cannot walk.
func TestDeployRejectsCyclicPageGraph(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", strings.NewReader(`{"label":"acme"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created createTenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	var lines bytes.Buffer
	enc := json.NewEncoder(&lines)
	require.NoError(t, enc.Encode(deployLine{Type: "entry", Path: "content/a.json", DataBase64: base64.StdEncoding.EncodeToString([]byte(`{"parent_path":"/b"}`))}))
	require.NoError(t, enc.Encode(deployLine{Type: "entry", Path: "content/b.json", DataBase64: base64.StdEncoding.EncodeToString([]byte(`{"parent_path":"/a"}`))}))
	require.NoError(t, enc.Encode(deployLine{Type: "done"}))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/deploy/acme", bytes.NewReader(lines.Bytes()))
	req.Header.Set("X-API-Key", created.APIKey)
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	sawError := false
	for _, line := range strings.Split(strings.TrimSpace(rec.Body.String()), "\n") {
		var ev progressEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev.Status == "error" {
			sawError = true
			require.Contains(t, ev.Message, "page parent/child graph")
		}
		require.NotEqual(t, "ok", ev.Status)
	}
	require.True(t, sawError, "expected a cyclic page graph to be rejected")
}
