package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home.systems/config"
)

func TestOpenObjectStoreLocalBackend(t *testing.T) {
	store, err := openObjectStore(context.Background(), config.ObjectStoreConfig{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestOpenObjectStoreDefaultsToLocal(t *testing.T) {
	store, err := openObjectStore(context.Background(), config.ObjectStoreConfig{LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestOpenObjectStoreRejectsUnknownBackend(t *testing.T) {
	_, err := openObjectStore(context.Background(), config.ObjectStoreConfig{Backend: "ceph"})
	assert.Error(t, err)
}
