// Package derivation implements the content-addressed derivation cache: the
// Absent -> InFlight -> Persisted state machine from spec §4.3, guaranteeing
// at most one concurrent producer per fingerprint.
//
// The origin holds the authoritative Cache for a deployment; edges defer to
// it for anything not already in their local secondary cache (see the
// edgesrv package). A single mutex guards the in-flight table, with
// per-fingerprint completion channels so unrelated fingerprints never contend with
// each other beyond the brief map lookup.
package derivation

import (
	"context"
	"fmt"
	"io"
	"sync"

	"home.systems/fingerprint"
	"home.systems/objectstore"
)

// Producer computes the bytes for a derivation from the inputs already named
// by its fingerprint. It must be a pure function: identical fingerprint
// implies identical output, every time, on every process.
type Producer func(ctx context.Context) (io.Reader, int64, error)

// entry tracks one in-flight computation and the waiters blocked on it.
type entry struct {
	done    chan struct{}
	result  []byte
	err     error
	waiters int
}

// Cache is the single-flight derivation engine. Persisted bytes live in the
// wrapped objectstore.Store; InFlight state lives only in memory and does
// not survive a process restart — that is acceptable because a restart
// during production simply means the next resolve() starts a fresh
// producer.
type Cache struct {
	store objectstore.Store

	mu       sync.Mutex
	inFlight map[fingerprint.Fingerprint]*entry
}

// New builds a Cache over store.
func New(store objectstore.Store) *Cache {
	return &Cache{
		store:    store,
		inFlight: make(map[fingerprint.Fingerprint]*entry),
	}
}

// Resolve returns the bytes for fp, computing them via producer if and only
// if no other caller is already doing so. All concurrent callers for the
// same fp observe the same result — the same bytes, or the same error.
//
// A producer failure is never cached: the entry is removed from the
// in-flight table on error so the next Resolve call retries from Absent.
func (c *Cache) Resolve(ctx context.Context, fp fingerprint.Fingerprint, producer Producer) ([]byte, error) {
	key := objectstore.DerivationKey(fp.String())

	if data, ok, err := c.readPersisted(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	c.mu.Lock()
	if e, ok := c.inFlight[fp]; ok {
		e.waiters++
		c.mu.Unlock()
		<-e.done
		if e.err != nil {
			return nil, e.err
		}
		return e.result, nil
	}

	e := &entry{done: make(chan struct{}), waiters: 1}
	c.inFlight[fp] = e
	c.mu.Unlock()

	// A producer that finished between the persisted check above and taking
	// the lock has already written its bytes; re-check before producing.
	// The producer runs detached from ctx's cancellation, so it completes
	// even when the initiating caller disconnects.
	data, ok, err := c.readPersisted(ctx, key)
	if err == nil && !ok {
		data, err = c.produce(context.WithoutCancel(ctx), fp, key, producer)
	}

	c.mu.Lock()
	delete(c.inFlight, fp)
	c.mu.Unlock()

	e.result, e.err = data, err
	close(e.done)

	if err != nil {
		return nil, err
	}
	return data, nil
}

// produce runs the producer to a temp buffer, hashes it, and persists it.
// Derivation producers typically cannot stream their output (an image or
// video encoder emits the whole artifact at once), so the pipeline is
// necessarily produce-to-buffer, hash, PutIfAbsent, then stream to clients —
// never the reverse.
func (c *Cache) produce(ctx context.Context, fp fingerprint.Fingerprint, key string, producer Producer) ([]byte, error) {
	r, _, err := producer(ctx)
	if err != nil {
		return nil, fmt.Errorf("derivation: producer for %s failed: %w", fp, err)
	}

	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("derivation: reading producer output for %s: %w", fp, err)
	}

	result, err := c.store.PutIfAbsent(ctx, key, newReader(buf), int64(len(buf)), "")
	if err != nil {
		return nil, fmt.Errorf("derivation: persisting %s: %w", fp, err)
	}
	_ = result // Created or Existed both mean the bytes are now durable.

	return buf, nil
}

// readPersisted checks whether fp is already Persisted, streaming it back
// if so.
func (c *Cache) readPersisted(ctx context.Context, key string) ([]byte, bool, error) {
	body, _, err := c.store.Get(ctx, key)
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("derivation: checking persisted state: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, false, fmt.Errorf("derivation: reading persisted bytes: %w", err)
	}
	return data, true, nil
}

// InFlightCount reports how many fingerprints currently have a producer
// running.
func (c *Cache) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

type byteReader struct {
	b []byte
	i int
}

func newReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
