package edgesrv

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"home.systems/errs"
)

// derivationCache is the edge's secondary cache: memory, then disk, then a
// single-flighted proxy call to the origin. Per spec's single-flight
// property, concurrent misses for the same fingerprint collapse into one
// origin call.
type derivationCache struct {
	mem     *memCache
	disk    *diskCache
	fetcher *derivationFetcher

	mu       sync.Mutex
	inFlight map[string]*inflightFetch
}

type inflightFetch struct {
	done  chan struct{}
	entry derivationEntry
	err   error
}

func newDerivationCache(mem *memCache, disk *diskCache, fetcher *derivationFetcher) *derivationCache {
	return &derivationCache{mem: mem, disk: disk, fetcher: fetcher, inFlight: make(map[string]*inflightFetch)}
}

func (c *derivationCache) Resolve(ctx context.Context, fingerprintHex string) (derivationEntry, error) {
	if entry, ok := c.mem.Get(fingerprintHex); ok {
		return entry, nil
	}
	if data, ok := c.disk.Get(fingerprintHex); ok {
		entry := derivationEntry{body: data, contentType: http.DetectContentType(data)}
		c.mem.Put(fingerprintHex, entry)
		return entry, nil
	}

	c.mu.Lock()
	if f, ok := c.inFlight[fingerprintHex]; ok {
		c.mu.Unlock()
		<-f.done
		return f.entry, f.err
	}
	f := &inflightFetch{done: make(chan struct{})}
	c.inFlight[fingerprintHex] = f
	c.mu.Unlock()

	// A fetch that finished between the checks above and taking the lock
	// has already stored its bytes on disk; re-check before calling origin.
	// The bytes are stored before the in-flight entry is removed, so a
	// later caller always finds either the entry or the stored bytes.
	var entry derivationEntry
	var err error
	if data, ok := c.disk.Get(fingerprintHex); ok {
		entry = derivationEntry{body: data, contentType: http.DetectContentType(data)}
	} else if entry, err = c.fetcher.fetch(ctx, fingerprintHex); err == nil {
		err = c.disk.Put(fingerprintHex, entry.body)
	}
	if err == nil {
		c.mem.Put(fingerprintHex, entry)
	}

	c.mu.Lock()
	delete(c.inFlight, fingerprintHex)
	c.mu.Unlock()

	f.entry, f.err = entry, err
	close(f.done)

	if err != nil {
		return derivationEntry{}, err
	}
	return entry, nil
}

// handleDerivation serves GET /derivations/<fingerprint>, resolving through
// the edge's local cache before falling back to the origin.
func (s *Server) handleDerivation(c echo.Context) error {
	fp := c.Param("fingerprint")
	if fp == "" {
		return errs.New(errs.KindInput, "missing fingerprint")
	}
	entry, err := s.derivations.Resolve(c.Request().Context(), fp)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "resolving derivation", err)
	}
	return c.Blob(http.StatusOK, entry.contentType, entry.body)
}
