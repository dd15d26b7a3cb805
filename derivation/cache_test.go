package derivation

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home.systems/fingerprint"
	"home.systems/objectstore/storetest"
)

func testFingerprint(t *testing.T) fingerprint.Fingerprint {
	t.Helper()
	return fingerprint.Compute(fingerprint.Spec{
		TransformID: "image.resize.jpeg",
		Params:      fingerprint.Params{fingerprint.Int("width", 800)},
		InputHashes: []string{"deadbeef"},
	})
}

// TestSingleFlight covers spec §8: N concurrent resolves for the same
// fingerprint invoke the producer exactly once, and every caller sees the
// same bytes.
func TestSingleFlight(t *testing.T) {
	store := storetest.New()
	cache := New(store)
	fp := testFingerprint(t)

	var calls int32
	producer := func(ctx context.Context) (io.Reader, int64, error) {
		atomic.AddInt32(&calls, 1)
		return strings.NewReader("produced-bytes"), 14, nil
	}

	const n = 20
	results := make([][]byte, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Resolve(context.Background(), fp, producer)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "producer must run exactly once")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "produced-bytes", string(results[i]))
	}
}

// TestProducerFailureNotCached covers spec §8 scenario 5: a failing
// producer is retried on the next Resolve, and a subsequent success streams
// from the persisted cache with no further producer invocation.
func TestProducerFailureNotCached(t *testing.T) {
	store := storetest.New()
	cache := New(store)
	fp := testFingerprint(t)

	var calls int32
	failThenSucceed := func(ctx context.Context) (io.Reader, int64, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, 0, assertError{}
		}
		return strings.NewReader("ok"), 2, nil
	}

	_, err := cache.Resolve(context.Background(), fp, failThenSucceed)
	require.Error(t, err)

	data, err := cache.Resolve(context.Background(), fp, failThenSucceed)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	data, err = cache.Resolve(context.Background(), fp, func(ctx context.Context) (io.Reader, int64, error) {
		t.Fatal("producer must not run again once persisted")
		return nil, 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

// TestResolveFromPersisted covers spec §8's cache-hit idempotence property.
func TestResolveFromPersisted(t *testing.T) {
	store := storetest.New()
	cache := New(store)
	fp := testFingerprint(t)

	_, err := cache.Resolve(context.Background(), fp, func(ctx context.Context) (io.Reader, int64, error) {
		return strings.NewReader("hello"), 5, nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		data, err := cache.Resolve(context.Background(), fp, func(ctx context.Context) (io.Reader, int64, error) {
			t.Fatal("producer must not run once persisted")
			return nil, 0, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	}
}

type assertError struct{}

func (assertError) Error() string { return "producer failed" }
