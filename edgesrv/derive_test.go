package edgesrv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivationCacheResolveSingleFlightsConcurrentMisses(t *testing.T) {
	var calls int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegbytes"))
	}))
	defer origin.Close()

	mem := newMemCache(1 << 20)
	disk, err := newDiskCache(t.TempDir(), 1<<20)
	require.NoError(t, err)
	cache := newDerivationCache(mem, disk, newDerivationFetcher(origin.URL))

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			entry, err := cache.Resolve(context.Background(), "deadbeef")
			assert.NoError(t, err)
			assert.Equal(t, "jpegbytes", string(entry.body))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent misses for the same fingerprint must collapse into one origin call")
}

func TestDerivationCacheResolveServesFromDiskWithoutOrigin(t *testing.T) {
	mem := newMemCache(1 << 20)
	disk, err := newDiskCache(t.TempDir(), 1<<20)
	require.NoError(t, err)
	require.NoError(t, disk.Put("cafef00d", []byte("cached")))

	cache := newDerivationCache(mem, disk, newDerivationFetcher("http://origin.invalid"))
	entry, err := cache.Resolve(context.Background(), "cafef00d")
	require.NoError(t, err)
	assert.Equal(t, "cached", string(entry.body))
}
