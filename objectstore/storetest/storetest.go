// Package storetest provides an in-memory objectstore.Store for unit tests,
// along with a call counter so single-flight behavior can be asserted the
// way spec §8 scenario 2 requires ("observed via a counting stub").
package storetest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"

	"home.systems/objectstore"
)

// Store is a mock objectstore.Store backed by an in-memory map.
type Store struct {
	mu      sync.Mutex
	objects map[string]object

	// Err, when set, is returned by every operation.
	Err error

	// Calls counts invocations per method name for assertions.
	Calls map[string]int
}

type object struct {
	data     []byte
	sha256   string
	contType string
}

// New creates an empty mock Store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		Calls:   make(map[string]int),
	}
}

func (s *Store) count(name string) {
	s.Calls[name]++
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, content io.Reader, size int64, sha256Hex string) (objectstore.PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("PutIfAbsent")
	if s.Err != nil {
		return 0, s.Err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return 0, err
	}
	if sha256Hex == "" {
		sum := sha256.Sum256(data)
		sha256Hex = hex.EncodeToString(sum[:])
	}

	if existing, ok := s.objects[key]; ok {
		if existing.sha256 != sha256Hex {
			return 0, objectstore.ErrConflict
		}
		return objectstore.Existed, nil
	}

	s.objects[key] = object{data: data, sha256: sha256Hex}
	return objectstore.Created, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, objectstore.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Get")
	if s.Err != nil {
		return nil, objectstore.Metadata{}, s.Err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, objectstore.Metadata{}, objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), objectstore.Metadata{
		Size: int64(len(obj.data)), SHA256: obj.sha256, ContentType: obj.contType,
	}, nil
}

func (s *Store) Head(ctx context.Context, key string) (objectstore.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Head")
	if s.Err != nil {
		return objectstore.Metadata{}, s.Err
	}
	obj, ok := s.objects[key]
	if !ok {
		return objectstore.Metadata{}, objectstore.ErrNotFound
	}
	return objectstore.Metadata{Size: int64(len(obj.data)), SHA256: obj.sha256, ContentType: obj.contType}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("Delete")
	if s.Err != nil {
		return s.Err
	}
	delete(s.objects, key)
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (<-chan objectstore.Entry, <-chan error) {
	entries := make(chan objectstore.Entry)
	errc := make(chan error, 1)

	s.mu.Lock()
	s.count("List")
	matches := make([]objectstore.Entry, 0)
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			matches = append(matches, objectstore.Entry{Key: key, Size: int64(len(obj.data))})
		}
	}
	err := s.Err
	s.mu.Unlock()

	go func() {
		defer close(entries)
		defer close(errc)
		if err != nil {
			errc <- err
			return
		}
		for _, e := range matches {
			select {
			case entries <- e:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return entries, errc
}

// CallCount returns how many times method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[method]
}
