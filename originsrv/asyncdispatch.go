package originsrv

import (
	"context"

	redisq "home.systems/queue/redis"
	"home.systems/worker"
)

// StartAsyncDispatch opens a Redis-backed job queue and starts a worker
// pool processing it, for origins deployed as multiple processes behind a
// load balancer. Call once at startup when cfg.RedisURL is configured;
// a single-process origin has no need for it, since handleDerive already
// resolves derivations directly against the in-memory single-flight cache.
func (s *Server) StartAsyncDispatch(ctx context.Context, redisURL string) (*worker.Pool, error) {
	queue, err := redisq.NewQueue(ctx, redisq.Config{RedisURL: redisURL})
	if err != nil {
		return nil, err
	}
	pool := worker.NewPool(queue, newDerivationJobProcessor(s), worker.DefaultConfig())
	pool.Start()
	return pool, nil
}
