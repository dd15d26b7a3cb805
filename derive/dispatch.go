// Package derive wires the fingerprint transform registry to the media
// package's pure producers, turning a revision.ManifestKey into a
// derivation.Producer the derivation cache can run.
//
// This is the only place in the module that knows both "what a transform
// id means" and "how to compute it" — derivation.Cache stays ignorant of
// image/video specifics, and media stays ignorant of fingerprints,
// manifests, and the object store.
package derive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"home.systems/derivation"
	"home.systems/fingerprint"
	"home.systems/media"
	"home.systems/objectstore"
	"home.systems/revision"
	"home.systems/worker"
)

// Dispatcher resolves manifest entries to derivation bytes, routing the
// actual encode/transcode work through a BlockingPool so request-handling
// goroutines never run CPU-heavy work themselves (see §5).
type Dispatcher struct {
	store    objectstore.Store
	cache    *derivation.Cache
	registry *fingerprint.Registry
	blocking *worker.BlockingPool
}

// NewDispatcher builds a Dispatcher. registry is usually
// fingerprint.DefaultRegistry(); blocking bounds concurrent encodes,
// independent of however many callers are waiting on Resolve.
func NewDispatcher(store objectstore.Store, cache *derivation.Cache, registry *fingerprint.Registry, blocking *worker.BlockingPool) *Dispatcher {
	return &Dispatcher{store: store, cache: cache, registry: registry, blocking: blocking}
}

// Resolve computes the fingerprint for (key, source asset), then returns
// its bytes and content type, producing them if they are not already
// persisted. source must be the asset named by key.ContentPath in the
// revision's manifest.
func (d *Dispatcher) Resolve(ctx context.Context, key revision.ManifestKey, source revision.Asset) ([]byte, string, error) {
	transform, ok := d.registry.Lookup(key.Transform)
	if !ok {
		return nil, "", fmt.Errorf("derive: unknown transform %q", key.Transform)
	}
	if err := transform.Validate(key.Params); err != nil {
		return nil, "", err
	}

	spec := fingerprint.Spec{
		TransformID: key.Transform,
		Params:      key.Params,
		InputHashes: []string{source.SHA256},
	}
	fp := fingerprint.Compute(spec)

	contentType := outputContentType(key.Transform, key.Params)

	producer := func(ctx context.Context) (io.Reader, int64, error) {
		srcBody, _, err := d.store.Get(ctx, objectstore.AssetKey(source.SHA256))
		if err != nil {
			return nil, 0, fmt.Errorf("derive: fetching source asset %s: %w", source.SHA256, err)
		}
		defer srcBody.Close()

		srcBytes, err := io.ReadAll(srcBody)
		if err != nil {
			return nil, 0, fmt.Errorf("derive: reading source asset %s: %w", source.SHA256, err)
		}

		var out []byte
		runErr := d.blocking.Run(ctx, func() error {
			var produceErr error
			out, produceErr = produce(ctx, key.Transform, key.Params, srcBytes)
			return produceErr
		})
		if runErr != nil {
			return nil, 0, runErr
		}
		return bytes.NewReader(out), int64(len(out)), nil
	}

	data, err := d.cache.Resolve(ctx, fp, producer)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// produce dispatches to the media package function matching id. It runs
// inside a BlockingPool slot, never on the calling goroutine directly.
func produce(ctx context.Context, id string, params fingerprint.Params, src []byte) ([]byte, error) {
	switch id {
	case "image.resize.jxl":
		w, h, q := imageParams(params)
		return media.Resize(src, w, h, media.CodecJPEGXL, q)
	case "image.resize.jpeg":
		w, h, q := imageParams(params)
		return media.Resize(src, w, h, media.CodecJPEG, q)
	case "image.resize.autofill.jpeg":
		w, h, _ := imageParams(params)
		return media.ResizeAutofill(src, w, h, media.CodecJPEG, 0)
	case "video.av1.720p":
		bitrate := intParam(params, "bitrate_kbps", 0)
		return media.TranscodeAV1(ctx, src, int(bitrate))
	default:
		return nil, fmt.Errorf("derive: transform %q has no producer wired", id)
	}
}

func outputContentType(id string, params fingerprint.Params) string {
	switch id {
	case "image.resize.jxl":
		return media.CodecJPEGXL.ContentType()
	case "image.resize.jpeg", "image.resize.autofill.jpeg":
		return media.CodecJPEG.ContentType()
	case "video.av1.720p":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func imageParams(params fingerprint.Params) (width, height, quality int) {
	return int(intParam(params, "width", 0)), int(intParam(params, "height", 0)), int(intParam(params, "quality", 0))
}

func intParam(params fingerprint.Params, name string, def int64) int64 {
	for _, p := range params {
		if p.Name == name && p.Kind == fingerprint.ParamInt {
			return p.IntValue
		}
	}
	return def
}
