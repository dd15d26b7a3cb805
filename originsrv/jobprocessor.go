package originsrv

import (
	"context"
	"time"

	"home.systems/fingerprint"
	redisq "home.systems/queue/redis"
)

// derivationJobProcessor implements worker.JobProcessor, letting an origin
// that runs multiple processes behind a load balancer dispatch derivation
// work through a Redis-backed queue instead of relying solely on each
// process's own in-memory single-flight table. A single-process origin
// never needs this — handleDerive calls the dispatcher directly.
type derivationJobProcessor struct {
	srv *Server
}

func newDerivationJobProcessor(srv *Server) *derivationJobProcessor {
	return &derivationJobProcessor{srv: srv}
}

// Process resolves the derivation named by job.Fingerprint, using the
// origin's own derivation index to recover which asset and transform it
// was computed from.
func (p *derivationJobProcessor) Process(ctx context.Context, job redisq.Job) error {
	fp, err := fingerprint.Parse(job.Fingerprint)
	if err != nil {
		return err
	}
	src, err := p.srv.lookupDerivation(fp)
	if err != nil {
		return err
	}
	revID, ok, err := p.srv.revs.Current(ctx, src.Tenant)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	rev, err := p.srv.revs.Get(ctx, src.Tenant, revID)
	if err != nil {
		return err
	}
	asset, ok := rev.Manifest.Assets[src.ContentPath]
	if !ok {
		return nil
	}
	_, _, err = p.srv.dispatch.Resolve(ctx, p.srv.manifestKeyFor(src), asset)
	return err
}

// Timeout bounds video transcodes generously longer than image resizes,
// since ffmpeg subprocesses dominate the long tail.
func (p *derivationJobProcessor) Timeout(job redisq.Job) time.Duration {
	if job.Family == "video" {
		return 5 * time.Minute
	}
	return 30 * time.Second
}
