package revload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"home.systems/revision"
)

func bundleEntry(t *testing.T, path string, v interface{}) revision.BundleEntry {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return revision.BundleEntry{Path: path, Data: data}
}

func baseBundle(t *testing.T) *revision.Bundle {
	t.Helper()
	return &revision.Bundle{
		Tenant: "acme",
		Entries: []revision.BundleEntry{
			bundleEntry(t, "home.json", revision.HomeJSON{PageGraphRoot: "/"}),
			{Path: "templates/post.html", Data: []byte("<html>{{.Title}}</html>")},
			bundleEntry(t, "content/index.json", pageDoc{
				Route:        "/",
				Title:        "Home",
				TemplateName: "post",
				AssetPaths:   []string{"/hero.jpg"},
			}),
		},
		Trailer: []revision.AssetTrailerEntry{
			{ContentPath: "/hero.jpg", SHA256: "deadbeef"},
		},
	}
}

func TestLoadValidBundle(t *testing.T) {
	g, err := Load(baseBundle(t))
	require.NoError(t, err)
	require.Contains(t, g.ByRoute, "/")
	require.Contains(t, g.Templates, "post")
	require.Equal(t, []string{"/"}, g.PublicRoutes())
}

func TestLoadRejectsDuplicateRoutes(t *testing.T) {
	b := baseBundle(t)
	b.Entries = append(b.Entries, bundleEntry(t, "content/other.json", pageDoc{
		Route: "/", Title: "Other",
	}))

	_, err := Load(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate route")
}

func TestLoadRejectsMissingTemplate(t *testing.T) {
	b := baseBundle(t)
	b.Entries[2] = bundleEntry(t, "content/index.json", pageDoc{
		Route: "/", TemplateName: "does-not-exist",
	})

	_, err := Load(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing template")
}

func TestLoadRejectsMissingAsset(t *testing.T) {
	b := baseBundle(t)
	b.Entries[2] = bundleEntry(t, "content/index.json", pageDoc{
		Route: "/", TemplateName: "post", AssetPaths: []string{"/missing.jpg"},
	})

	_, err := Load(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing asset")
}

func TestLoadDraftExcludedFromPublicRoutes(t *testing.T) {
	b := baseBundle(t)
	b.Entries = append(b.Entries, bundleEntry(t, "content/draft.json", pageDoc{
		Route: "/draft", Draft: true,
	}))

	g, err := Load(b)
	require.NoError(t, err)

	_, ok := g.Page("/draft", false)
	require.False(t, ok)
	_, ok = g.Page("/draft", true)
	require.True(t, ok)
	require.NotContains(t, g.PublicRoutes(), "/draft")
}
