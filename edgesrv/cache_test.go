package edgesrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCacheEvictsOverBudget(t *testing.T) {
	m := newMemCache(10)

	m.Put("a", derivationEntry{body: make([]byte, 6)})
	m.Put("b", derivationEntry{body: make([]byte, 6)})

	_, aStillCached := m.Get("a")
	entryB, bStillCached := m.Get("b")

	assert.False(t, aStillCached, "oldest entry should be evicted once the budget is exceeded")
	assert.True(t, bStillCached)
	assert.Equal(t, 6, len(entryB.body))
}

func TestMemCachePutOverwriteAdjustsUsedBytes(t *testing.T) {
	m := newMemCache(100)
	m.Put("a", derivationEntry{body: make([]byte, 40)})
	m.Put("a", derivationEntry{body: make([]byte, 10)})

	assert.Equal(t, int64(10), m.used)
}

func TestDiskCachePersistsAndEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	d, err := newDiskCache(dir, 10)
	require.NoError(t, err)

	require.NoError(t, d.Put("a", make([]byte, 6)))
	require.NoError(t, d.Put("b", make([]byte, 6)))

	_, aOK := d.Get("a")
	data, bOK := d.Get("b")
	assert.False(t, aOK)
	assert.True(t, bOK)
	assert.Equal(t, 6, len(data))
}

func TestDiskCacheLoadsExistingEntriesOnStartup(t *testing.T) {
	dir := t.TempDir()
	d1, err := newDiskCache(dir, 100)
	require.NoError(t, err)
	require.NoError(t, d1.Put("a", []byte("hello")))

	d2, err := newDiskCache(dir, 100)
	require.NoError(t, err)
	data, ok := d2.Get("a")
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
}
