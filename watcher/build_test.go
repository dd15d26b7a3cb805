package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildBundleWalksTreeAndSumsAssets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "home.json"), `{"page_graph_root":"content/index.json","template_set_ref":"templates","asset_manifest_ref":"assets"}`)
	writeFile(t, filepath.Join(root, "templates", "base.html"), "<html></html>")
	writeFile(t, filepath.Join(root, "content", "index.json"), `{"parent_path":""}`)
	writeFile(t, filepath.Join(root, "static", "logo.png"), "fake-png-bytes")

	bundle, err := BuildBundle(root, "acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", bundle.Tenant)
	assert.Len(t, bundle.Trailer, 1)
	assert.Equal(t, "/static/logo.png", bundle.Trailer[0].ContentPath)
	assert.Len(t, bundle.Entries, 4)
}

func TestBuildBundleRejectsPageCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "content", "a.json"), `{"parent_path":"/b"}`)
	writeFile(t, filepath.Join(root, "content", "b.json"), `{"parent_path":"/a"}`)

	_, err := BuildBundle(root, "acme")
	assert.Error(t, err)
}
