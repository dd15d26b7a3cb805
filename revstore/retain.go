package revstore

import (
	"context"
	"fmt"

	"home.systems/objectstore"
	"home.systems/revision"
)

// RetentionPolicy bounds how many of a tenant's past revisions Retain keeps
// addressable. The current revision is always kept regardless of Keep.
type RetentionPolicy struct {
	// Keep is how many of the most recent revisions (including current) to
	// retain. Zero means keep only current.
	Keep int
}

// Retain drops every revision for tenant older than policy allows, then
// sweeps object storage for assets and derivations no retained revision's
// manifest references. Because assets and derivations are content-addressed
// and shared across revisions (spec §9), a key is only safe to delete once
// no surviving revision — for any tenant, since the store's layout does not
// segregate blobs by tenant — references it. Retain therefore counts every
// revision in every other tenant's log as a reference, alongside this
// tenant's retained revisions, before deleting anything.
func (s *Store) Retain(ctx context.Context, tenant string, policy RetentionPolicy) error {
	var ids []string
	if err := s.db.GetJSON(bucketLog, tenant, &ids); err != nil {
		return nil // no revisions logged for tenant yet
	}

	keep := policy.Keep
	if keep < 1 {
		keep = 1
	}
	if len(ids) <= keep {
		return nil
	}

	drop := ids[:len(ids)-keep]
	retained := ids[len(ids)-keep:]

	// The current revision is kept even when it is older than the Keep most
	// recent log entries.
	if cur, ok, _ := s.Current(ctx, tenant); ok {
		for i, id := range drop {
			if id == string(cur) {
				drop = append(drop[:i:i], drop[i+1:]...)
				retained = append([]string{id}, retained...)
				break
			}
		}
	}

	live := make(map[string]bool)
	for _, id := range retained {
		rev, err := s.Get(ctx, tenant, revision.ID(id))
		if err != nil {
			continue
		}
		markReferenced(live, rev.Manifest)
	}

	others, _ := s.db.List(bucketLog)
	for _, other := range others {
		var otherIDs []string
		if other == tenant || s.db.GetJSON(bucketLog, other, &otherIDs) != nil {
			continue
		}
		for _, id := range otherIDs {
			if rev, err := s.Get(ctx, other, revision.ID(id)); err == nil {
				markReferenced(live, rev.Manifest)
			}
		}
	}

	for _, id := range drop {
		rev, err := s.Get(ctx, tenant, revision.ID(id))
		if err != nil {
			continue
		}
		for _, a := range rev.Manifest.Assets {
			if !live[objectstore.AssetKey(a.SHA256)] {
				_ = s.objs.Delete(ctx, objectstore.AssetKey(a.SHA256))
			}
		}
		for _, fp := range rev.Manifest.Derivations {
			key := objectstore.DerivationKey(fp.String())
			if !live[key] {
				_ = s.objs.Delete(ctx, key)
			}
		}
		_ = s.objs.Delete(ctx, objectstore.ManifestKey(tenant, id))
		_ = s.db.Delete(bucketRevisions, revKey(tenant, id))
	}

	if err := s.db.PutJSON(bucketLog, tenant, retained); err != nil {
		return fmt.Errorf("revstore: retain: update log: %w", err)
	}
	return nil
}

func markReferenced(live map[string]bool, m revision.Manifest) {
	for _, a := range m.Assets {
		live[objectstore.AssetKey(a.SHA256)] = true
	}
	for _, fp := range m.Derivations {
		live[objectstore.DerivationKey(fp.String())] = true
	}
}
