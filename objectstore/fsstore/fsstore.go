// Package fsstore implements objectstore.Store over the local filesystem.
// It is used by cub in development mode (no origin configured) and by
// tests that need a real Store without a network dependency. Layout mirrors
// a content-addressable blob store: each key maps directly to a path below
// root, split so no single directory accumulates unbounded entries.
package fsstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"home.systems/objectstore"
)

// Store is an objectstore.Store rooted at a local directory.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// path maps a logical key to its on-disk location. Keys that look like a
// derivation or asset key (a long hex digest as their final segment) get an
// extra split-prefix directory so that, e.g., a million derivations do not
// all land in one `derivations/` directory; anything else maps straight
// through.
func (s *Store) path(key string) string {
	parts := strings.Split(key, "/")
	last := parts[len(parts)-1]
	if len(last) >= 4 && isHex(last) {
		parts[len(parts)-1] = last[:2] + "/" + last[2:4] + "/" + last
	}
	return filepath.Join(append([]string{s.root}, parts...)...)
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, content io.Reader, size int64, sha256Hex string) (objectstore.PutResult, error) {
	dst := s.path(key)

	if existing, err := s.Head(ctx, key); err == nil {
		if existing.SHA256 != "" && sha256Hex != "" && existing.SHA256 != sha256Hex {
			return 0, objectstore.ErrConflict
		}
		return objectstore.Existed, nil
	} else if !errors.Is(err, objectstore.ErrNotFound) {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("fsstore: mkdir: %w", err)
	}

	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("fsstore: create temp: %w", err)
	}
	h := sha256.New()
	if _, err := io.Copy(f, io.TeeReader(content, h)); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("fsstore: write: %w", err)
	}
	f.Close()

	gotHash := hex.EncodeToString(h.Sum(nil))
	if sha256Hex != "" && gotHash != sha256Hex {
		os.Remove(tmp)
		return 0, fmt.Errorf("fsstore: content hash %s does not match declared %s", gotHash, sha256Hex)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("fsstore: rename into place: %w", err)
	}
	if err := os.WriteFile(dst+".sha256", []byte(gotHash), 0o644); err != nil {
		return 0, fmt.Errorf("fsstore: write sidecar hash: %w", err)
	}

	return objectstore.Created, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, objectstore.Metadata, error) {
	dst := s.path(key)
	f, err := os.Open(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, objectstore.Metadata{}, objectstore.ErrNotFound
		}
		return nil, objectstore.Metadata{}, fmt.Errorf("fsstore: open %s: %w", key, err)
	}
	md, err := s.Head(ctx, key)
	if err != nil {
		f.Close()
		return nil, objectstore.Metadata{}, err
	}
	return f, md, nil
}

func (s *Store) Head(ctx context.Context, key string) (objectstore.Metadata, error) {
	dst := s.path(key)
	info, err := os.Stat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return objectstore.Metadata{}, objectstore.ErrNotFound
		}
		return objectstore.Metadata{}, fmt.Errorf("fsstore: stat %s: %w", key, err)
	}

	sha256Hex := ""
	if b, err := os.ReadFile(dst + ".sha256"); err == nil {
		sha256Hex = string(b)
	}
	return objectstore.Metadata{Size: info.Size(), SHA256: sha256Hex}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	dst := s.path(key)
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: delete %s: %w", key, err)
	}
	os.Remove(dst + ".sha256")
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (<-chan objectstore.Entry, <-chan error) {
	entries := make(chan objectstore.Entry)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errc)

		root := filepath.Join(s.root, filepath.FromSlash(prefix))
		walkRoot := s.root
		err := filepath.WalkDir(walkRoot, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && p == walkRoot {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.HasSuffix(p, ".sha256") || strings.HasSuffix(p, ".tmp") {
				return nil
			}
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			// Collapse the split-prefix directories back into the logical key.
			key = collapseSplitPrefix(key)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			select {
			case entries <- objectstore.Entry{Key: key, Size: info.Size()}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		_ = root
		if err != nil {
			errc <- err
		}
	}()

	return entries, errc
}

// collapseSplitPrefix undoes the "ab/cd/abcdef..." split inserted by path
// for hex-keyed entries, recovering the logical "prefix/abcdef..." key.
func collapseSplitPrefix(rel string) string {
	segments := strings.Split(rel, "/")
	if len(segments) >= 3 {
		last := segments[len(segments)-1]
		mid := segments[len(segments)-2]
		first := segments[len(segments)-3]
		if len(last) >= 4 && isHex(last) && mid == last[2:4] && first == last[:2] {
			return strings.Join(append(segments[:len(segments)-3], last), "/")
		}
	}
	return rel
}
