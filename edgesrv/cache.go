package edgesrv

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// derivationEntry is one cached derivation body plus the content type the
// origin served it with.
type derivationEntry struct {
	body        []byte
	contentType string
}

// cachedSize reports the byte cost charged against a budget for one entry.
func (e derivationEntry) cachedSize() int64 { return int64(len(e.body)) }

// memCache is a byte-budgeted LRU over github.com/hashicorp/golang-lru/v2.
// The library evicts by item count; memCache layers a running byte total on
// top via its eviction callback so "256MB of derivations" is enforced
// directly rather than approximated by a guessed item count.
type memCache struct {
	mu     sync.Mutex
	budget int64
	used   int64
	cache  *lru.Cache[string, derivationEntry]
}

func newMemCache(budgetBytes int64) *memCache {
	m := &memCache{budget: budgetBytes}
	// A large nominal capacity: real eviction is byte-budget driven inside
	// Put, not by this count ceiling. The library still needs a positive
	// size to construct.
	c, _ := lru.NewWithEvict[string, derivationEntry](1<<20, func(key string, value derivationEntry) {
		m.used -= value.cachedSize()
	})
	m.cache = c
	return m
}

func (m *memCache) Get(key string) (derivationEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Get(key)
}

func (m *memCache) Put(key string, entry derivationEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.cache.Peek(key); ok {
		m.used -= existing.cachedSize()
	}
	m.used += entry.cachedSize()
	m.cache.Add(key, entry)
	for m.used > m.budget && m.cache.Len() > 0 {
		m.cache.RemoveOldest()
	}
}

// diskCache persists derivation bytes under a directory, tracked by an
// access-order list so eviction drops the least recently used file once the
// budget is exceeded. The disk cache is a read-through layer for the
// in-memory one: every miss that disk serves also repopulates memCache, per
// the "writes go to disk first, memory is a read-through cache of disk"
// policy spec §9 leaves as an implementer's choice.
type diskCache struct {
	dir    string
	budget int64

	mu    sync.Mutex
	order *list.List
	elems map[string]*list.Element
	sizes map[string]int64
	used  int64
}

func newDiskCache(dir string, budgetBytes int64) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("edgesrv: creating cache dir: %w", err)
	}
	d := &diskCache{
		dir:    dir,
		budget: budgetBytes,
		order:  list.New(),
		elems:  make(map[string]*list.Element),
		sizes:  make(map[string]int64),
	}
	d.loadExisting()
	return d, nil
}

func (d *diskCache) loadExisting() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		d.touch(e.Name(), info.Size())
	}
}

func (d *diskCache) path(key string) string { return filepath.Join(d.dir, key) }

func (d *diskCache) touch(key string, size int64) {
	if el, ok := d.elems[key]; ok {
		d.order.MoveToFront(el)
		return
	}
	el := d.order.PushFront(key)
	d.elems[key] = el
	d.sizes[key] = size
	d.used += size
}

func (d *diskCache) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	if _, ok := d.elems[key]; !ok {
		d.mu.Unlock()
		return nil, false
	}
	d.mu.Unlock()

	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, false
	}
	d.mu.Lock()
	d.touch(key, int64(len(data)))
	d.mu.Unlock()
	return data, true
}

func (d *diskCache) Put(key string, data []byte) error {
	if err := os.WriteFile(d.path(key), data, 0o644); err != nil {
		return fmt.Errorf("edgesrv: writing cache entry: %w", err)
	}
	d.mu.Lock()
	d.touch(key, int64(len(data)))
	for d.used > d.budget && d.order.Len() > 1 {
		oldest := d.order.Back()
		oldKey := oldest.Value.(string)
		if oldKey == key {
			break
		}
		d.evict(oldKey)
	}
	d.mu.Unlock()
	return nil
}

func (d *diskCache) evict(key string) {
	el, ok := d.elems[key]
	if !ok {
		return
	}
	d.order.Remove(el)
	delete(d.elems, key)
	d.used -= d.sizes[key]
	delete(d.sizes, key)
	_ = os.Remove(d.path(key))
}

// derivationFetcher resolves a derivation the edge does not yet have
// cached by proxying to the origin's GET /derive/<fingerprint>, the call
// spec §4.8 names for a cache miss.
type derivationFetcher struct {
	originBaseURL string
	client        *http.Client
}

func newDerivationFetcher(originBaseURL string) *derivationFetcher {
	return &derivationFetcher{originBaseURL: originBaseURL, client: &http.Client{}}
}

func (f *derivationFetcher) fetch(ctx context.Context, fingerprintHex string) (derivationEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.originBaseURL+"/derive/"+fingerprintHex, nil)
	if err != nil {
		return derivationEntry{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return derivationEntry{}, fmt.Errorf("edgesrv: fetching derivation from origin: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return derivationEntry{}, fmt.Errorf("edgesrv: origin returned %s for derivation %s", resp.Status, fingerprintHex)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return derivationEntry{}, fmt.Errorf("edgesrv: reading derivation body: %w", err)
	}
	return derivationEntry{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}
