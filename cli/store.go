package cli

import (
	"context"
	"fmt"

	"home.systems/config"
	"home.systems/objectstore"
	"home.systems/objectstore/fsstore"
	"home.systems/objectstore/s3"
)

// openObjectStore builds the object store backend named by cfg: S3 (and
// S3-compatible endpoints like MinIO or Hetzner Cloud Storage) when
// cfg.Backend is "s3", a local content-addressed directory when it is
// "local" or empty — the development and test backend, and the one edges
// use for a filesystem-backed direct-read mirror. Any other backend name
// is an error.
func openObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (objectstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:     cfg.Endpoint,
			Region:       cfg.Region,
			Bucket:       cfg.Bucket,
			UsePathStyle: cfg.ForcePathStyle,
		})
	case "local", "":
		return fsstore.New(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("cli: unknown object store backend %q", cfg.Backend)
	}
}
