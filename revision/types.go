// Package revision defines the core data model from spec §3: Tenant,
// Revision, Page, Asset, Derivation, Manifest, Credential, and Session.
// These are plain value types; the state machines that build, persist, and
// load them live in the sibling revstore, revload, and watcher packages.
package revision

import (
	"time"

	"home.systems/fingerprint"
)

// Tenant is a namespace identified by a DNS-safe label. It owns revisions,
// credentials, and a private object-store prefix. Tenants are created
// administratively and never deleted from live state.
type Tenant struct {
	Label       string    `json:"label"`
	CreatedAt   time.Time `json:"created_at"`
	APIKeyHash  string    `json:"api_key_hash"`
	IdentityProviders []string `json:"identity_providers,omitempty"`
}

// Revision is a strongly-identified immutable snapshot of a tenant's site.
type Revision struct {
	ID        ID        `json:"id"`
	Tenant    string    `json:"tenant"`
	CreatedAt time.Time `json:"created_at"`

	// PageGraphRoot identifies the root of the page graph within this
	// revision's bundle (see revload.Load for how it's parsed).
	PageGraphRoot string `json:"page_graph_root"`
	// TemplateSetRef and AssetManifestRef point at sections of the same
	// bundle; they are not separately content-addressed, since a revision
	// is submitted as a single atomic bundle.
	TemplateSetRef  string `json:"template_set_ref"`
	AssetManifestRef string `json:"asset_manifest_ref"`

	// Manifest maps logical keys (content-path, optionally + transform) to
	// derivation fingerprints or asset hashes.
	Manifest Manifest `json:"manifest"`

	// Fingerprint is a hash of every input that went into this revision —
	// its own content-addressed identity, independent of ID (which encodes
	// only creation order, not content).
	Fingerprint string `json:"fingerprint"`
}

// Page is a content document that exists only within a revision.
type Page struct {
	ContentPath string    `json:"content_path"`
	Route       string    `json:"route"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Draft       bool      `json:"draft"`
	Archived    bool      `json:"archived"`

	BodyHTML      string `json:"body_html"`
	PlainText     string `json:"plain_text"`
	ReadingTimeMin int   `json:"reading_time_min"`
	TOC           []TOCEntry `json:"toc,omitempty"`

	TemplateName string   `json:"template_name"`
	AssetPaths   []string `json:"asset_paths,omitempty"`
	LinkedPaths  []string `json:"linked_paths,omitempty"`

	ParentPath string   `json:"parent_path,omitempty"`
	ChildPaths []string `json:"child_paths,omitempty"`
}

// TOCEntry is one heading in a page's table of contents.
type TOCEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Anchor string `json:"anchor"`
}

// Asset is a binary file addressed by content-path and content hash.
type Asset struct {
	ContentPath string `json:"content_path"`
	SHA256      string `json:"sha256"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Derivation is the output of a transform, addressed by its fingerprint.
type Derivation struct {
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	ContentType string                  `json:"content_type"`
	Size        int64                   `json:"size"`
}

// ManifestKey identifies one entry in a revision's derivation manifest: a
// source asset at ContentPath put through Transform with Params.
type ManifestKey struct {
	ContentPath string              `json:"content_path"`
	Transform   string              `json:"transform"`
	Params      fingerprint.Params  `json:"params"`
}

// Manifest maps logical (content-path, transform, params) keys built at
// revision-creation time to the derivation fingerprint they resolve to, plus
// the asset hash for every content-path that isn't transformed.
type Manifest struct {
	Derivations map[string]fingerprint.Fingerprint `json:"derivations"` // canonical key string -> fingerprint
	Assets      map[string]Asset                   `json:"assets"`      // content-path -> asset
}

// Key renders a ManifestKey to the canonical string Manifest.Derivations is
// indexed by.
func (k ManifestKey) Key() string {
	return k.ContentPath + "#" + k.Transform + "?" + k.Params.Canonical()
}

// Credential links a visitor's external identity to a tenant.
type Credential struct {
	Tenant      string    `json:"tenant"`
	Provider    string    `json:"provider"`
	Subject     string    `json:"subject"`
	DisplayName string    `json:"display_name"`
	Tier        string    `json:"tier"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CredentialKey is the (tenant, provider, subject) composite key.
func (c Credential) CredentialKey() string {
	return c.Tenant + "/" + c.Provider + "/" + c.Subject
}

// Session is the claims a signed session cookie carries, per §4.10: an HMAC
// over tenant || subject || issued_at || provider, verified statelessly.
type Session struct {
	Tenant   string    `json:"tenant"`
	Subject  string    `json:"subject"`
	Provider string    `json:"provider"`
	IssuedAt time.Time `json:"issued_at"`
}
