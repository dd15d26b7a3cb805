// Package revstore implements the revision store from spec §4.4: submit,
// promote, current, subscribe, get, and retain. A bbolt database is the
// authoritative system-of-record for the tenant registry and the live
// CURRENT pointer — its ACID transactions are what make promotion atomic.
// The object store holds the bulky manifest bytes and carries a best-effort
// mirror of CURRENT for operational tooling; edges never read that mirror
// directly, they learn of new revisions through Subscribe.
package revstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"home.systems/db/bolt"
	"home.systems/objectstore"
	"home.systems/revision"
)

const (
	bucketRevisions = "revstore.revisions" // tenant/id -> json(revision.Revision)
	bucketCurrent   = "revstore.current"   // tenant -> id string
	bucketLog       = "revstore.log"       // tenant -> json([]id string), newest last
)

// Store is the revision store. One Store serves every tenant hosted by an
// origin; tenants never share a revision namespace.
type Store struct {
	objs objectstore.Store
	db   *bolt.DB

	mu   sync.Mutex
	subs map[string][]chan revision.ID
}

// Open builds a Store backed by objs for blob content and a bbolt database
// at dbPath for metadata and the current-revision pointer.
func Open(objs objectstore.Store, dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("revstore: open bolt: %w", err)
	}
	return OpenWithDB(objs, db)
}

// OpenWithDB builds a Store over an already-open bbolt database, so the
// revision store can share one database file with the tenant registry
// instead of each opening (and lock-contending on) its own.
func OpenWithDB(objs objectstore.Store, db *bolt.DB) (*Store, error) {
	for _, b := range []string{bucketRevisions, bucketCurrent, bucketLog} {
		if err := db.CreateBucket(b); err != nil {
			return nil, fmt.Errorf("revstore: create bucket %s: %w", b, err)
		}
	}
	return &Store{objs: objs, db: db, subs: make(map[string][]chan revision.ID)}, nil
}

// Close releases the underlying bbolt database.
func (s *Store) Close() error { return s.db.Close() }

// Submit persists rev's manifest to object storage and its metadata to the
// local database, without making it visible to Current or Subscribe. A
// submitted revision must be explicitly Promoted before it serves traffic.
func (s *Store) Submit(ctx context.Context, rev *revision.Revision) error {
	manifestJSON, err := json.Marshal(rev.Manifest)
	if err != nil {
		return fmt.Errorf("revstore: marshal manifest: %w", err)
	}

	key := objectstore.ManifestKey(rev.Tenant, string(rev.ID))
	if _, err := s.objs.PutIfAbsent(ctx, key, bytes.NewReader(manifestJSON), int64(len(manifestJSON)), ""); err != nil {
		return fmt.Errorf("revstore: persist manifest: %w", err)
	}

	if err := s.db.PutJSON(bucketRevisions, revKey(rev.Tenant, string(rev.ID)), rev); err != nil {
		return fmt.Errorf("revstore: persist revision metadata: %w", err)
	}

	var ids []string
	_ = s.db.GetJSON(bucketLog, rev.Tenant, &ids)
	ids = append(ids, string(rev.ID))
	if err := s.db.PutJSON(bucketLog, rev.Tenant, ids); err != nil {
		return fmt.Errorf("revstore: append revision log: %w", err)
	}

	return nil
}

// PutBundle persists bundle's raw content/template entries alongside rev's
// manifest, so an edge (or revload, on the origin itself) can later
// reconstruct the full page graph. Stored separately from the manifest
// because it carries every page/template/asset body, not just the lookup
// table.
func (s *Store) PutBundle(ctx context.Context, tenant string, id revision.ID, bundle *revision.Bundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("revstore: marshal bundle: %w", err)
	}
	key := objectstore.BundleKey(tenant, string(id))
	if _, err := s.objs.PutIfAbsent(ctx, key, bytes.NewReader(data), int64(len(data)), ""); err != nil {
		return fmt.Errorf("revstore: persist bundle: %w", err)
	}
	return nil
}

// GetBundle loads the raw bundle previously stored by PutBundle.
func (s *Store) GetBundle(ctx context.Context, tenant string, id revision.ID) (*revision.Bundle, error) {
	key := objectstore.BundleKey(tenant, string(id))
	body, _, err := s.objs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("revstore: fetch bundle: %w", err)
	}
	defer body.Close()

	var bundle revision.Bundle
	if err := json.NewDecoder(body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("revstore: decode bundle: %w", err)
	}
	return &bundle, nil
}

// Promote validates that every asset and derivation rev's manifest
// references is actually present, then atomically makes id the tenant's
// current revision. The bbolt Update below is the single point of
// atomicity — once it commits, every concurrent Current and Get call
// observes the new pointer; the object-store CURRENT mirror and subscriber
// fan-out happen after, since neither needs to be atomic with the swap
// itself.
func (s *Store) Promote(ctx context.Context, tenant string, id revision.ID) error {
	rev, err := s.Get(ctx, tenant, id)
	if err != nil {
		return fmt.Errorf("revstore: promote: %w", err)
	}

	if err := s.validateManifest(ctx, rev.Manifest); err != nil {
		return fmt.Errorf("revstore: promote %s: manifest incomplete: %w", id, err)
	}

	if err := s.db.PutJSON(bucketCurrent, tenant, string(id)); err != nil {
		return fmt.Errorf("revstore: swap current pointer: %w", err)
	}

	// Best-effort mirror for operators poking at the object store directly;
	// edges discover promotions via Subscribe, not this key.
	mirrorKey := objectstore.CurrentKey(tenant)
	_ = s.objs.Delete(ctx, mirrorKey)
	_, _ = s.objs.PutIfAbsent(ctx, mirrorKey, bytes.NewReader([]byte(id)), int64(len(id)), "")

	s.notify(tenant, id)
	return nil
}

// validateManifest heads every referenced asset and derivation key, failing
// closed if any is missing — a revision must never be promoted to serve
// bytes it cannot actually deliver.
func (s *Store) validateManifest(ctx context.Context, m revision.Manifest) error {
	for _, a := range m.Assets {
		if _, err := s.objs.Head(ctx, objectstore.AssetKey(a.SHA256)); err != nil {
			return fmt.Errorf("asset %s (%s): %w", a.ContentPath, a.SHA256, err)
		}
	}
	for key, fp := range m.Derivations {
		if _, err := s.objs.Head(ctx, objectstore.DerivationKey(fp.String())); err != nil {
			return fmt.Errorf("derivation %s (%s): %w", key, fp, err)
		}
	}
	return nil
}

// Current returns the tenant's live revision id, if one has been promoted.
func (s *Store) Current(ctx context.Context, tenant string) (revision.ID, bool, error) {
	var id string
	if err := s.db.GetJSON(bucketCurrent, tenant, &id); err != nil {
		return "", false, nil
	}
	return revision.ID(id), true, nil
}

// Get loads a previously submitted revision's metadata and manifest by id.
func (s *Store) Get(ctx context.Context, tenant string, id revision.ID) (*revision.Revision, error) {
	var rev revision.Revision
	if err := s.db.GetJSON(bucketRevisions, revKey(tenant, string(id)), &rev); err != nil {
		return nil, fmt.Errorf("revstore: revision %s/%s not found: %w", tenant, id, err)
	}
	return &rev, nil
}

// Subscribe registers a channel that receives the id of every revision
// promoted for tenant from this point forward. The returned cancel func
// must be called to release the channel; failing to do so leaks it.
func (s *Store) Subscribe(tenant string) (<-chan revision.ID, func()) {
	ch := make(chan revision.ID, 1)

	s.mu.Lock()
	s.subs[tenant] = append(s.subs[tenant], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[tenant]
		for i, c := range subs {
			if c == ch {
				s.subs[tenant] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}

func (s *Store) notify(tenant string, id revision.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[tenant] {
		select {
		case ch <- id:
		default:
			// Slow subscriber: drop the earlier unread value and replace it
			// with the latest, since only "what's current now" matters, not
			// every intermediate promotion.
			select {
			case <-ch:
			default:
			}
			ch <- id
		}
	}
}

func revKey(tenant, id string) string { return tenant + "/" + id }
