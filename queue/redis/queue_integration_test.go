//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	url := fmt.Sprintf("redis://%s:%s/0", host, port.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return url, cleanup
}

func TestQueue_Integration_EnqueueDequeue(t *testing.T) {
	url, cleanup := setupRedisContainer(t)
	defer cleanup()

	q, err := NewQueue(context.Background(), Config{RedisURL: url, KeyPrefix: "test:"})
	require.NoError(t, err)
	defer q.Close()

	job := Job{Fingerprint: "abc123", Tenant: "acme", AssetKey: "assets/logo.png", Family: "image", EnqueuedAt: time.Now()}
	require.NoError(t, q.Enqueue(job))

	depth, err := q.GetQueueDepth("image")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	got, err := q.Dequeue("image", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Fingerprint, got.Fingerprint)
	assert.Equal(t, job.Tenant, got.Tenant)
}

func TestQueue_Integration_ProcessingLifecycle(t *testing.T) {
	url, cleanup := setupRedisContainer(t)
	defer cleanup()

	q, err := NewQueue(context.Background(), Config{RedisURL: url, KeyPrefix: "test:"})
	require.NoError(t, err)
	defer q.Close()

	job := Job{Fingerprint: "fp-1", Tenant: "acme", Family: "video"}
	require.NoError(t, q.MarkProcessing(job.Fingerprint, time.Now().Add(time.Minute)))

	inProcessing, err := q.IsProcessing(job.Fingerprint)
	require.NoError(t, err)
	assert.True(t, inProcessing)

	require.NoError(t, q.FailJob(job, true))

	inProcessing, err = q.IsProcessing(job.Fingerprint)
	require.NoError(t, err)
	assert.False(t, inProcessing)

	depth, err := q.GetQueueDepth("video")
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "failed job with requeue=true should land back on its family queue")
}
