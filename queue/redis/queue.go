// Package redis provides a Redis-backed job queue for the origin's
// derivation dispatch: one list per transform family, a processing set for
// in-flight jobs, and blocking dequeue so worker.Pool workers idle on an
// empty queue instead of polling.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue handles job queue operations using Redis
type Queue struct {
	client *redis.Client
	ctx    context.Context
	prefix string // Key prefix for queue keys (e.g., "home:")
}

// Job represents a single derivation to produce: render the asset at
// Fingerprint according to the transform named by Family (e.g. "image",
// "video") and store the result under the derivation cache key.
type Job struct {
	Fingerprint string    `json:"fingerprint"`
	Tenant      string    `json:"tenant"`
	AssetKey    string    `json:"assetKey"`
	Family      string    `json:"family"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	RetryCount  int       `json:"retryCount"`
}

// Config configures the Redis queue
type Config struct {
	RedisURL  string // Redis URL (defaults to HOME_REDIS_URL or redis://localhost:6379/0)
	KeyPrefix string // Key prefix for queue keys (defaults to "queue:")
}

// NewQueue creates a new Redis queue client
func NewQueue(ctx context.Context, config Config) (*Queue, error) {
	redisURL := config.RedisURL
	if redisURL == "" {
		redisURL = os.Getenv("HOME_REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "queue:"
	}

	return &Queue{
		client: client,
		ctx:    ctx,
		prefix: prefix,
	}, nil
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue adds a job to a queue
func (q *Queue) Enqueue(job Job) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	queueKey := fmt.Sprintf("%s%s", q.prefix, job.Family)
	return q.client.RPush(q.ctx, queueKey, string(jobJSON)).Err()
}

// Dequeue removes and returns the next job from a queue (blocking)
func (q *Queue) Dequeue(queueName string, timeout time.Duration) (*Job, error) {
	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)

	// Use a fresh context with timeout for each dequeue operation
	// This prevents issues with cancelled/expired contexts from init time
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := q.client.BLPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil // Timeout, no job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil // No job
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// MarkProcessing adds a job to the processing set with a deadline
func (q *Queue) MarkProcessing(fingerprint string, deadline time.Time) error {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	return q.client.ZAdd(q.ctx, processingKey, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: fingerprint,
	}).Err()
}

// CompleteJob removes a job from the processing set
func (q *Queue) CompleteJob(fingerprint string) error {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	return q.client.ZRem(q.ctx, processingKey, fingerprint).Err()
}

// FailJob marks job's fingerprint as no longer processing and, if requeue is
// set, re-enqueues it onto its transform family's queue with an incremented
// retry count.
func (q *Queue) FailJob(job Job, requeue bool) error {
	if err := q.CompleteJob(job.Fingerprint); err != nil {
		return err
	}

	if requeue {
		retry := job
		retry.EnqueuedAt = time.Now()
		retry.RetryCount = job.RetryCount + 1
		return q.Enqueue(retry)
	}

	return nil
}

// GetQueueDepth returns the number of jobs in a queue
func (q *Queue) GetQueueDepth(queueName string) (int, error) {
	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)
	depth, err := q.client.LLen(q.ctx, queueKey).Result()
	if err != nil {
		return 0, err
	}
	return int(depth), nil
}

// IsProcessing checks if a job is currently being processed
func (q *Queue) IsProcessing(fingerprint string) (bool, error) {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	score, err := q.client.ZScore(q.ctx, processingKey, fingerprint).Result()
	if err == redis.Nil {
		return false, nil // Not in processing set
	}
	if err != nil {
		return false, err
	}
	return score > 0, nil
}

// WaitForJobCompletion polls until fingerprint leaves the processing set
// and checkReady reports its derivation cache entry, or timeout elapses.
func (q *Queue) WaitForJobCompletion(fingerprint string, timeout time.Duration, checkReady func(string) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		inProcessing, err := q.IsProcessing(fingerprint)
		if err != nil {
			return fmt.Errorf("check processing status: %w", err)
		}

		if !inProcessing {
			ready, err := checkReady(fingerprint)
			if err != nil {
				return fmt.Errorf("check derivation status: %w", err)
			}
			if ready {
				return nil
			}
			return fmt.Errorf("derivation %s failed", fingerprint)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for derivation %s", fingerprint)
		}
	}
	return nil
}
