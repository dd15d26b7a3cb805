// Package edgesrv implements cub, the edge service: host-based tenant
// routing, page serving against the currently live revision, and a
// byte-budgeted local cache of derivations fetched from the origin — spec
// §4.8.
package edgesrv

import (
	"sync"
	"sync/atomic"

	"home.systems/revision"
	"home.systems/revload"
)

// liveRevision is the atomically-swappable snapshot a tenant's request
// handlers read from. Swapping the pointer never blocks an in-flight
// request holding an older *liveRevision — the old value is simply
// garbage once its last reader drops it.
type liveRevision struct {
	id       revision.ID
	graph    *revload.Graph
	manifest revision.Manifest
}

// tenantState holds one tenant's live revision pointer and the goroutine
// state that keeps it current.
type tenantState struct {
	label string
	live  atomic.Pointer[liveRevision]

	stop chan struct{}
	once sync.Once
}

func newTenantState(label string) *tenantState {
	return &tenantState{label: label, stop: make(chan struct{})}
}

func (t *tenantState) Close() {
	t.once.Do(func() { close(t.stop) })
}

// tenantRegistry is the edge's in-memory directory of tenants it currently
// serves, keyed by host. It is populated lazily: the first request for an
// unknown host triggers tenant discovery against the origin.
type tenantRegistry struct {
	mu      sync.RWMutex
	byHost  map[string]*tenantState
}

func newTenantRegistry() *tenantRegistry {
	return &tenantRegistry{byHost: make(map[string]*tenantState)}
}

func (r *tenantRegistry) get(host string) (*tenantState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byHost[host]
	return t, ok
}

func (r *tenantRegistry) getOrCreate(host string) (*tenantState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byHost[host]; ok {
		return t, false
	}
	t := newTenantState(host)
	r.byHost[host] = t
	return t, true
}
