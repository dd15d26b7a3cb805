package derive

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"home.systems/derivation"
	"home.systems/fingerprint"
	"home.systems/objectstore"
	"home.systems/objectstore/storetest"
	"home.systems/revision"
	"home.systems/worker"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolveProducesAndPersistsDerivation(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()

	png := testPNG(t)
	_, err := store.PutIfAbsent(ctx, objectstore.AssetKey("src1"), bytes.NewReader(png), int64(len(png)), "src1")
	require.NoError(t, err)

	cache := derivation.New(store)
	d := NewDispatcher(store, cache, fingerprint.DefaultRegistry(), worker.NewBlockingPool(2))

	key := revision.ManifestKey{
		ContentPath: "/img.png",
		Transform:   "image.resize.jpeg",
		Params: fingerprint.Params{
			fingerprint.Int("width", 4),
			fingerprint.Int("height", 4),
			fingerprint.Int("quality", 80),
		},
	}
	source := revision.Asset{ContentPath: "/img.png", SHA256: "src1"}

	data, contentType, err := d.Resolve(ctx, key, source)
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", contentType)
	require.NotEmpty(t, data)

	// Second resolve must hit the persisted derivation, not re-decode.
	getsBefore := store.Calls["Get"]
	data2, _, err := d.Resolve(ctx, key, source)
	require.NoError(t, err)
	require.Equal(t, data, data2)
	require.Equal(t, getsBefore+1, store.Calls["Get"]) // just the derivation lookup
}

func TestResolveRejectsUnknownTransform(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	cache := derivation.New(store)
	d := NewDispatcher(store, cache, fingerprint.DefaultRegistry(), worker.NewBlockingPool(1))

	key := revision.ManifestKey{ContentPath: "/x.png", Transform: "image.nonexistent"}
	_, _, err := d.Resolve(ctx, key, revision.Asset{SHA256: "src1"})
	require.Error(t, err)
}

func TestResolveRejectsUnknownParam(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	cache := derivation.New(store)
	d := NewDispatcher(store, cache, fingerprint.DefaultRegistry(), worker.NewBlockingPool(1))

	key := revision.ManifestKey{
		ContentPath: "/x.png",
		Transform:   "image.resize.jpeg",
		Params:      fingerprint.Params{fingerprint.Str("bogus", "x")},
	}
	_, _, err := d.Resolve(ctx, key, revision.Asset{SHA256: "src1"})
	require.Error(t, err)
}
