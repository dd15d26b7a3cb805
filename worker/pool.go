// Package worker provides a generic worker pool for processing queued jobs,
// and a bounded blocking-work pool for CPU-heavy derivation producers.
//
// When Redis dispatch is enabled, the origin runs a Pool over the Redis
// queue with a fixed number of workers per transform family. BlockingPool
// caps how many CPU-bound producers run at once (the origin passes
// MaxConcurrentJobs; NCPU when that is not positive); each producer runs on
// the calling goroutine once it holds a slot.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	redisq "home.systems/queue/redis"
)

// Queue defines the interface for job queue operations
type Queue interface {
	Dequeue(queueName string, timeout time.Duration) (*redisq.Job, error)
	Enqueue(job redisq.Job) error
	MarkProcessing(fingerprint string, deadline time.Time) error
	CompleteJob(fingerprint string) error
	FailJob(job redisq.Job, requeue bool) error
}

// JobProcessor renders the derivation named by a job. Timeout bounds how
// long a single derivation may run before the worker abandons it and marks
// it failed (eligible for the dispatcher's own retry policy).
type JobProcessor interface {
	Process(ctx context.Context, job redisq.Job) error
	Timeout(job redisq.Job) time.Duration
}

// Pool manages a pool of workers that process jobs from queues
type Pool struct {
	workers   []*Worker
	queue     Queue
	processor JobProcessor
	stopChan  chan struct{}
}

// Worker represents a single worker that processes jobs from a queue
type Worker struct {
	id        int
	queueName string
	queue     Queue
	processor JobProcessor
	stopChan  chan struct{}
}

// Config configures the worker pool
type Config struct {
	Queues map[string]int // Queue name -> number of workers
}

// DefaultConfig returns the default worker configuration: one queue per
// derivation transform family, sized to that family's typical encode cost.
func DefaultConfig() Config {
	return Config{
		Queues: map[string]int{
			"image": 4, // image resizes are cheap, run several at once
			"video": 1, // video transcodes are expensive, serialize per worker
			"gc":    1, // retention sweeps never need concurrency
		},
	}
}

// NewPool creates a new worker pool
func NewPool(queue Queue, processor JobProcessor, config Config) *Pool {
	pool := &Pool{
		workers:   make([]*Worker, 0),
		queue:     queue,
		processor: processor,
		stopChan:  make(chan struct{}),
	}

	// Create workers for each queue
	for queueName, workerCount := range config.Queues {
		for i := 0; i < workerCount; i++ {
			worker := &Worker{
				id:        i,
				queueName: queueName,
				queue:     queue,
				processor: processor,
				stopChan:  make(chan struct{}),
			}
			pool.workers = append(pool.workers, worker)
		}
	}

	return pool
}

// Start starts all workers in the pool
func (p *Pool) Start() {
	log.Printf("Starting worker pool with %d workers", len(p.workers))

	for _, worker := range p.workers {
		go worker.Start()
		log.Printf("Started worker %d for queue '%s'", worker.id, worker.queueName)
	}
}

// Stop stops all workers in the pool
func (p *Pool) Stop() {
	log.Println("Stopping worker pool...")
	close(p.stopChan)

	for _, worker := range p.workers {
		close(worker.stopChan)
	}

	log.Println("Worker pool stopped")
}

// Start starts a worker processing loop
func (w *Worker) Start() {
	log.Printf("Worker %d (%s queue) started", w.id, w.queueName)

	for {
		select {
		case <-w.stopChan:
			log.Printf("Worker %d (%s queue) stopped", w.id, w.queueName)
			return
		default:
			// Process next job from queue
			if err := w.processNext(); err != nil {
				log.Printf("Worker %d (%s queue) error: %v", w.id, w.queueName, err)
				// Don't exit on error, continue processing
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNext fetches and processes the next job from the queue
func (w *Worker) processNext() error {
	job, err := w.queue.Dequeue(w.queueName, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dequeue: %w", err)
	}
	if job == nil {
		return nil
	}

	log.Printf("worker %d (%s queue) processing %s", w.id, w.queueName, job.Fingerprint)

	timeout := w.processor.Timeout(*job)
	deadline := time.Now().Add(timeout)

	if err := w.queue.MarkProcessing(job.Fingerprint, deadline); err != nil {
		log.Printf("worker %d failed to mark %s processing: %v", w.id, job.Fingerprint, err)
		w.queue.Enqueue(*job)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := w.processor.Process(ctx, *job); err != nil {
		log.Printf("worker %d derivation %s failed: %v", w.id, job.Fingerprint, err)
		if failErr := w.queue.FailJob(*job, job.RetryCount < maxRetries); failErr != nil {
			log.Printf("worker %d failed to mark %s failed: %v", w.id, job.Fingerprint, failErr)
		}
		return nil
	}

	log.Printf("worker %d completed derivation %s", w.id, job.Fingerprint)
	if err := w.queue.CompleteJob(job.Fingerprint); err != nil {
		log.Printf("worker %d failed to mark %s completed: %v", w.id, job.Fingerprint, err)
	}

	return nil
}

// maxRetries bounds automatic requeue attempts; beyond this the derivation
// stays failed until a fresh request dispatches it again.
const maxRetries = 3
