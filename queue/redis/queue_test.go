package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQueue_InvalidURL(t *testing.T) {
	_, err := NewQueue(context.Background(), Config{RedisURL: "not-a-redis-url"})
	assert.Error(t, err)
}

func TestNewQueue_UnreachableServer(t *testing.T) {
	_, err := NewQueue(context.Background(), Config{RedisURL: "redis://127.0.0.1:1/0"})
	assert.Error(t, err)
}
