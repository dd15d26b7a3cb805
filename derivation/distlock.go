package derivation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock coordinates Absent->InFlight transitions across multiple origin
// processes sharing one fingerprint namespace. It is a thin SETNX lock, not
// a replacement for Cache's in-memory waiter fan-out: a process that loses
// the race polls the object store until the winner's Persisted write lands,
// rather than joining an in-process waiter list it has no way to observe.
//
// This is deliberately optional. A single-process origin — the common
// deployment — never needs it; Cache's mutex is already authoritative.
type DistLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDistLock builds a DistLock over an existing redis client.
func NewDistLock(client *redis.Client, keyPrefix string, ttl time.Duration) *DistLock {
	if keyPrefix == "" {
		keyPrefix = "home:derive:lock:"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &DistLock{client: client, prefix: keyPrefix, ttl: ttl}
}

// Acquire attempts to become the producing process for fingerprintHex.
// Returns true if this call won the race.
func (d *DistLock) Acquire(ctx context.Context, fingerprintHex string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+fingerprintHex, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("derivation: acquire dist lock: %w", err)
	}
	return ok, nil
}

// Release gives up the lock early, once the fingerprint is Persisted, so
// other processes don't wait out the full TTL before rechecking the store.
func (d *DistLock) Release(ctx context.Context, fingerprintHex string) error {
	if err := d.client.Del(ctx, d.prefix+fingerprintHex).Err(); err != nil {
		return fmt.Errorf("derivation: release dist lock: %w", err)
	}
	return nil
}
