package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisq "home.systems/queue/redis"
)

// fakeQueue is an in-memory stand-in for *redis.Queue, enough to drive a
// single worker through one dequeue/process/complete cycle.
type fakeQueue struct {
	mu         sync.Mutex
	pending    []redisq.Job
	processing map[string]bool
	completed  []string
	failed     []string
}

func newFakeQueue(jobs ...redisq.Job) *fakeQueue {
	return &fakeQueue{pending: jobs, processing: make(map[string]bool)}
}

func (q *fakeQueue) Dequeue(queueName string, timeout time.Duration) (*redisq.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return &job, nil
}

func (q *fakeQueue) Enqueue(job redisq.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
	return nil
}

func (q *fakeQueue) MarkProcessing(fingerprint string, deadline time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing[fingerprint] = true
	return nil
}

func (q *fakeQueue) CompleteJob(fingerprint string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, fingerprint)
	q.completed = append(q.completed, fingerprint)
	return nil
}

func (q *fakeQueue) FailJob(job redisq.Job, requeue bool) error {
	q.mu.Lock()
	delete(q.processing, job.Fingerprint)
	q.failed = append(q.failed, job.Fingerprint)
	q.mu.Unlock()
	if requeue {
		job.RetryCount++
		return q.Enqueue(job)
	}
	return nil
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
	fail      bool
}

func (p *recordingProcessor) Process(ctx context.Context, job redisq.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, job.Fingerprint)
	if p.fail {
		return assert.AnError
	}
	return nil
}

func (p *recordingProcessor) Timeout(job redisq.Job) time.Duration {
	return time.Second
}

func TestPoolProcessesQueuedJob(t *testing.T) {
	q := newFakeQueue(redisq.Job{Fingerprint: "fp-1", Family: "image"})
	proc := &recordingProcessor{}
	pool := NewPool(q, proc, Config{Queues: map[string]int{"image": 1}})

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.completed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"fp-1"}, proc.processed)
}

func TestPoolMarksFailedJobFailed(t *testing.T) {
	q := newFakeQueue(redisq.Job{Fingerprint: "fp-2", Family: "video"})
	proc := &recordingProcessor{fail: true}
	pool := NewPool(q, proc, Config{Queues: map[string]int{"video": 1}})

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.failed) == maxRetries+1
	}, 2*time.Second, 10*time.Millisecond)
}
