package originsrv

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	boltdb "home.systems/db/bolt"
	"home.systems/config"
	"home.systems/fingerprint"
	"home.systems/objectstore/fsstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := fsstore.New(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	db, err := boltdb.Open(filepath.Join(t.TempDir(), "mom.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.MomConfig{
		Service:           config.ServiceConfig{Name: "mom", Version: "test"},
		MaxConcurrentJobs: 2,
	}
	srv, err := New(cfg, store, db, "test-secret")
	require.NoError(t, err)
	return srv
}

func testPNGBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 50, G: 100, B: 150, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDeployPromoteAndDeriveFlow(t *testing.T) {
	srv := newTestServer(t)

	// Create tenant.
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"label":"acme"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", body)
	req.Header.Set("Content-Type", "application/json")
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created createTenantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "acme", created.Label)

	// Deploy a bundle with one asset.
	png := testPNGBytes(t)
	pngB64 := base64.StdEncoding.EncodeToString(png)
	sum := sha256.Sum256(png)
	imgSHA := hex.EncodeToString(sum[:])

	var lines bytes.Buffer
	enc := json.NewEncoder(&lines)
	require.NoError(t, enc.Encode(deployLine{Type: "trailer", ContentPath: "/img.png", SHA256: imgSHA}))
	require.NoError(t, enc.Encode(deployLine{Type: "entry", Path: "/img.png", DataBase64: pngB64}))
	require.NoError(t, enc.Encode(deployLine{Type: "done"}))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/deploy/acme", bytes.NewReader(lines.Bytes()))
	req.Header.Set("X-API-Key", created.APIKey)
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var revID string
	for _, line := range strings.Split(strings.TrimSpace(rec.Body.String()), "\n") {
		var ev progressEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev.Status == "ok" {
			revID = ev.RevID
		}
		require.NotEqual(t, "error", ev.Status, ev.Message)
	}
	require.NotEmpty(t, revID)

	// Promote.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/revisions/"+revID+"/promote", nil)
	req.Header.Set("X-API-Key", created.APIKey)
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Request a derivation.
	deriveBody, err := json.Marshal(deriveRequest{ContentPath: "/img.png", Transform: "image.resize.jpeg",
		Params: fingerprint.Params{fingerprint.Int("width", 4)}})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/revisions/"+revID+"/derive", bytes.NewReader(deriveBody))
	req.Header.Set("X-API-Key", created.APIKey)
	req.Header.Set("Content-Type", "application/json")
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var deriveResp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deriveResp))
	fp, ok := deriveResp["fingerprint"].(string)
	require.True(t, ok)
	require.NotEmpty(t, fp)

	// Fetch via the public proxy.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/derive/"+fp, nil)
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	require.NotZero(t, rec.Body.Len())
}

func TestDeployRejectsWrongAPIKey(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/tenants", strings.NewReader(`{"label":"acme"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/deploy/acme", strings.NewReader(""))
	req.Header.Set("X-API-Key", "wrong-key")
	srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
