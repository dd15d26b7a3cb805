package worker

import (
	"context"
	"runtime"
)

// BlockingPool bounds concurrent CPU-heavy work (image and video encoding)
// to a fixed number of slots, independent of however many network-request
// goroutines are waiting on derivations. Submitting more work than there
// are slots blocks the caller until one frees up — exactly the backpressure
// §5 requires between request handling and the blocking-work pool.
type BlockingPool struct {
	slots chan struct{}
}

// NewBlockingPool creates a pool with n slots. n <= 0 defaults to
// runtime.NumCPU(), matching the spec's "bounded to NCPU workers".
func NewBlockingPool(n int) *BlockingPool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &BlockingPool{slots: make(chan struct{}, n)}
}

// Run executes fn once a slot is available, releasing it on return. It
// blocks until either a slot opens or ctx is cancelled, in which case it
// returns ctx.Err() without ever invoking fn.
func (p *BlockingPool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	return fn()
}

// InUse reports how many slots are currently occupied, for metrics/tests.
func (p *BlockingPool) InUse() int {
	return len(p.slots)
}

// Cap reports the pool's total slot count.
func (p *BlockingPool) Cap() int {
	return cap(p.slots)
}
