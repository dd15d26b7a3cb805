package revision

import "time"

// BundleEntry is one file inside a deploy bundle, keyed by its path within
// the tar-like stream (content/..., templates/..., src/..., home.json).
type BundleEntry struct {
	Path string
	Data []byte
}

// AssetTrailerEntry is one line of the JSON trailer that follows a deploy
// bundle's entries, declaring the SHA-256 every asset content-path is
// expected to hash to.
type AssetTrailerEntry struct {
	ContentPath string `json:"content_path"`
	SHA256      string `json:"sha256"`
}

// Bundle is a fully-received deploy payload: the entry stream plus its
// trailer, not yet validated or indexed. revload.Load turns a Bundle into
// an in-memory Graph; revstore.Store.Submit persists one to object storage
// without promoting it.
type Bundle struct {
	Tenant    string
	Entries   []BundleEntry
	Trailer   []AssetTrailerEntry
	CreatedAt time.Time
}

// HomeJSON is the parsed form of a bundle's home.json manifest-of-manifests
// entry: it names which bundle paths hold the page graph root, the template
// set, and the asset manifest, so the loader doesn't have to guess by
// convention alone.
type HomeJSON struct {
	PageGraphRoot    string `json:"page_graph_root"`
	TemplateSetRef   string `json:"template_set_ref"`
	AssetManifestRef string `json:"asset_manifest_ref"`
}
