// Package objectstore defines the single interface by which bytes enter and
// leave durable storage. Every other component — the derivation cache, the
// revision store, the origin's deploy endpoint, the edge's asset proxy —
// consumes this interface; none of them talk to a storage backend directly.
//
// Keys follow the layout from spec §6:
//
//	assets/<sha256>
//	derivations/<fingerprint>
//	revisions/<tenant>/<revid>/manifest
//	revisions/<tenant>/CURRENT
package objectstore

import (
	"context"
	"errors"
	"io"
)

// PutResult distinguishes a fresh write from one that found the key already
// present, which is the whole point of PutIfAbsent's conditional semantics.
type PutResult int

const (
	Created PutResult = iota
	Existed
)

// Metadata is what Head returns for an existing key.
type Metadata struct {
	Size        int64
	ContentType string
	// SHA256 is populated when the backend can report it cheaply (most
	// backends store it as object metadata at write time).
	SHA256 string
}

// Entry is one result from a List stream.
type Entry struct {
	Key  string
	Size int64
}

// ErrNotFound is returned by Get and Head for a missing key. It is
// non-retryable at this layer — whether to retry a miss is a policy
// decision made above the store.
var ErrNotFound = errors.New("objectstore: not found")

// ErrConflict is returned by PutIfAbsent when the key already holds content
// with a different hash than what's being written. This is a corruption
// signal: it must never be retried, and callers should surface it loudly.
var ErrConflict = errors.New("objectstore: conflict: key exists with different content")

// Store is the only path by which bytes leave or enter durable storage.
type Store interface {
	// PutIfAbsent is the only write. It is conditional so that concurrent
	// writers of the same content-addressed key never race: if the key is
	// already present with identical content, it returns Existed; if
	// present with different content, it returns ErrConflict; otherwise it
	// writes and returns Created. Transient I/O failures are distinct from
	// ErrConflict and may be retried by the caller.
	PutIfAbsent(ctx context.Context, key string, content io.Reader, size int64, sha256Hex string) (PutResult, error)

	// Get streams the bytes at key. Returns ErrNotFound if key is missing.
	Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error)

	// Head retrieves metadata without the body. Returns ErrNotFound if
	// missing.
	Head(ctx context.Context, key string) (Metadata, error)

	// Delete removes key. Used only by garbage collection, never on the
	// serving path.
	Delete(ctx context.Context, key string) error

	// List streams every key with the given prefix, depth-first over
	// whatever the backend's native ordering is.
	List(ctx context.Context, prefix string) (<-chan Entry, <-chan error)
}

// AssetKey returns the object-store key for an asset's content hash.
func AssetKey(sha256Hex string) string { return "assets/" + sha256Hex }

// DerivationKey returns the object-store key for a derivation fingerprint's
// hex form.
func DerivationKey(fingerprintHex string) string { return "derivations/" + fingerprintHex }

// ManifestKey returns the object-store key for a tenant/revision's manifest.
func ManifestKey(tenant, revID string) string {
	return "revisions/" + tenant + "/" + revID + "/manifest"
}

// BundleKey returns the object-store key for a tenant/revision's raw
// content/template bundle — the bytes revload.Load parses. Distinct from
// ManifestKey, which holds only the derivation/asset lookup table.
func BundleKey(tenant, revID string) string {
	return "revisions/" + tenant + "/" + revID + "/bundle"
}

// CurrentKey returns the object-store key for a tenant's live-pointer.
func CurrentKey(tenant string) string { return "revisions/" + tenant + "/CURRENT" }
