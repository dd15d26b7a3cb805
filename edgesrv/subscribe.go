package edgesrv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"home.systems/common"
	"home.systems/revision"
	"home.systems/revload"
)

var logger = common.ServiceLogger("edgesrv", "")

// originClient is the edge's view of mom's HTTP API: the handful of calls
// cub needs to discover and follow a tenant's live revision.
type originClient struct {
	baseURL string
	client  *http.Client
}

func newOriginClient(baseURL string) *originClient {
	return &originClient{baseURL: baseURL, client: &http.Client{}}
}

func (o *originClient) currentRevisionID(ctx context.Context, tenant string) (revision.ID, error) {
	var out struct {
		RevID string `json:"revid"`
	}
	if err := o.getJSON(ctx, fmt.Sprintf("/v1/tenants/%s/current", tenant), &out); err != nil {
		return "", err
	}
	return revision.ID(out.RevID), nil
}

func (o *originClient) fetchRevision(ctx context.Context, tenant string, id revision.ID) (*revisionPayload, error) {
	var out revisionPayload
	if err := o.getJSON(ctx, fmt.Sprintf("/v1/tenants/%s/revisions/%s", tenant, id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *originClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("edgesrv: calling origin %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edgesrv: origin %s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// revisionPayload mirrors originsrv's wire shape for a single revision
// fetch: the revision's metadata plus its full bundle.
type revisionPayload struct {
	Revision *revision.Revision `json:"revision"`
	Bundle   *revision.Bundle   `json:"bundle"`
}

// loadAndSwap fetches revision id from the origin, parses its bundle into a
// page graph, and atomically swaps it in as t's live revision. Handlers
// already holding the previous *liveRevision keep serving it to completion;
// only new dereferences of t.live observe the swap.
func (s *Server) loadAndSwap(ctx context.Context, t *tenantState, id revision.ID) error {
	payload, err := s.origin.fetchRevision(ctx, t.label, id)
	if err != nil {
		return err
	}
	graph, err := revload.Load(payload.Bundle)
	if err != nil {
		return fmt.Errorf("edgesrv: loading revision %s for %s: %w", id, t.label, err)
	}
	t.live.Store(&liveRevision{id: id, graph: graph, manifest: payload.Revision.Manifest})
	s.warmup(ctx, t, graph)
	return nil
}

// followPromotions long-polls the origin's ndjson subscription stream for
// tenant, loading and swapping in each newly promoted revision as it
// arrives. It runs for the lifetime of t, reconnecting with backoff on any
// stream error — the origin being briefly unreachable must never take an
// edge out of service for requests against its already-loaded revision.
func (s *Server) followPromotions(t *tenantState) {
	ctx := context.Background()
	backoff := time.Second
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		if err := s.streamOnce(ctx, t); err != nil {
			logger.WithField("tenant", t.label).WithError(err).Warn("subscription interrupted")
		}

		select {
		case <-t.stop:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Server) streamOnce(ctx context.Context, t *tenantState) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.OriginBaseURL+"/v1/tenants/"+t.label+"/subscribe", nil)
	if err != nil {
		return err
	}
	resp, err := s.origin.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-t.stop:
			return nil
		default:
		}
		var ev struct {
			RevID string `json:"revid"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if err := s.loadAndSwap(ctx, t, revision.ID(ev.RevID)); err != nil {
			logger.WithFields(map[string]interface{}{"tenant": t.label, "revid": ev.RevID}).WithError(err).Error("failed to load promoted revision")
		}
	}
	return scanner.Err()
}
