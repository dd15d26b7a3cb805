package revstore

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"home.systems/fingerprint"
	"home.systems/objectstore/storetest"
	"home.systems/revision"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(storetest.New(), filepath.Join(t.TempDir(), "revstore.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func submittable(t *testing.T, tenant string) *revision.Revision {
	t.Helper()
	id, err := revision.NewID(time.Now())
	require.NoError(t, err)
	return &revision.Revision{
		ID:     id,
		Tenant: tenant,
		Manifest: revision.Manifest{
			Assets: map[string]revision.Asset{
				"/img.jpg": {ContentPath: "/img.jpg", SHA256: "deadbeef"},
			},
			Derivations: map[string]fingerprint.Fingerprint{},
		},
	}
}

func TestSubmitThenPromote(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rev := submittable(t, "acme")

	require.NoError(t, s.Submit(ctx, rev))

	// Not current until promoted.
	_, ok, err := s.Current(ctx, "acme")
	require.NoError(t, err)
	require.False(t, ok)

	// Asset isn't actually in the store, so promotion must fail closed.
	err = s.Promote(ctx, "acme", rev.ID)
	require.Error(t, err)

	// Put the referenced asset, then promotion succeeds.
	_, err = s.objs.PutIfAbsent(ctx, "assets/deadbeef", stringsReader("x"), 1, "")
	require.NoError(t, err)

	require.NoError(t, s.Promote(ctx, "acme", rev.ID))

	cur, ok, err := s.Current(ctx, "acme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rev.ID, cur)
}

func TestSubscribeReceivesPromotion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rev := submittable(t, "acme")
	require.NoError(t, s.Submit(ctx, rev))
	_, err := s.objs.PutIfAbsent(ctx, "assets/deadbeef", stringsReader("x"), 1, "")
	require.NoError(t, err)

	ch, cancel := s.Subscribe("acme")
	defer cancel()

	require.NoError(t, s.Promote(ctx, "acme", rev.ID))

	select {
	case got := <-ch:
		require.Equal(t, rev.ID, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for promotion notification")
	}
}

func TestRetainKeepsOnlyRecentRevisions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []revision.ID
	for i := 0; i < 3; i++ {
		rev := submittable(t, "acme")
		rev.Manifest.Assets["/img.jpg"] = revision.Asset{ContentPath: "/img.jpg", SHA256: "hash" + string(rune('a'+i))}
		require.NoError(t, s.Submit(ctx, rev))
		ids = append(ids, rev.ID)
	}

	require.NoError(t, s.Retain(ctx, "acme", RetentionPolicy{Keep: 1}))

	_, err := s.Get(ctx, "acme", ids[0])
	require.Error(t, err)
	_, err = s.Get(ctx, "acme", ids[1])
	require.Error(t, err)
	_, err = s.Get(ctx, "acme", ids[2])
	require.NoError(t, err)
}

func TestPutBundleThenGetBundle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rev := submittable(t, "acme")
	require.NoError(t, s.Submit(ctx, rev))

	bundle := &revision.Bundle{
		Tenant: "acme",
		Entries: []revision.BundleEntry{
			{Path: "home.json", Data: []byte(`{"page_graph_root":"content/index.json"}`)},
			{Path: "content/index.json", Data: []byte(`{"route":"/"}`)},
		},
	}
	require.NoError(t, s.PutBundle(ctx, "acme", rev.ID, bundle))

	got, err := s.GetBundle(ctx, "acme", rev.ID)
	require.NoError(t, err)
	require.Equal(t, bundle.Tenant, got.Tenant)
	require.Len(t, got.Entries, 2)
	require.Equal(t, bundle.Entries[0].Data, got.Entries[0].Data)
}

type stringsReaderT struct {
	s string
	i int
}

func stringsReader(s string) *stringsReaderT { return &stringsReaderT{s: s} }

func (r *stringsReaderT) Read(p []byte) (int, error) {
	if r.i >= len(r.s) {
		return 0, io.EOF
	}
	n := copy(p, r.s[r.i:])
	r.i += n
	return n, nil
}
